package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	"github.com/yungbote/journeys-backend/internal/data/aggregates"
	"github.com/yungbote/journeys-backend/internal/data/repos"
	types "github.com/yungbote/journeys-backend/internal/domain"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/modules/journeys"
	"github.com/yungbote/journeys-backend/internal/observability"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

type CatalogFormat string

const (
	CatalogFormatYAML CatalogFormat = "yaml"
	CatalogFormatTOML CatalogFormat = "toml"
)

// CatalogFormatFromPath picks the decoder by file extension.
func CatalogFormatFromPath(p string) (CatalogFormat, error) {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		return CatalogFormatYAML, nil
	case ".toml":
		return CatalogFormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported catalog file %q (want .yaml, .yml or .toml)", p)
	}
}

type CatalogFile struct {
	Journeys []JourneyDoc `yaml:"journeys" toml:"journeys"`
}

type JourneyDoc struct {
	Slug                   string       `yaml:"slug" toml:"slug"`
	Title                  string       `yaml:"title" toml:"title"`
	Description            string       `yaml:"description" toml:"description"`
	IsActive               *bool        `yaml:"is_active" toml:"is_active"`
	AutoAssignOnActivation bool         `yaml:"auto_assign_on_activation" toml:"auto_assign_on_activation"`
	SortOrder              int          `yaml:"sort_order" toml:"sort_order"`
	RequiredXP             int          `yaml:"required_xp" toml:"required_xp"`
	NextJourney            string       `yaml:"next_journey" toml:"next_journey"`
	Chapters               []ChapterDoc `yaml:"chapters" toml:"chapters"`
}

type ChapterDoc struct {
	Slug        string     `yaml:"slug" toml:"slug"`
	Title       string     `yaml:"title" toml:"title"`
	Description string     `yaml:"description" toml:"description"`
	SortOrder   *int       `yaml:"sort_order" toml:"sort_order"`
	IsMandatory *bool      `yaml:"is_mandatory" toml:"is_mandatory"`
	XPReward    int        `yaml:"xp_reward" toml:"xp_reward"`
	Quests      []QuestDoc `yaml:"quests" toml:"quests"`
}

type QuestDoc struct {
	Slug        string    `yaml:"slug" toml:"slug"`
	Title       string    `yaml:"title" toml:"title"`
	Description string    `yaml:"description" toml:"description"`
	SortOrder   *int      `yaml:"sort_order" toml:"sort_order"`
	IsMandatory *bool     `yaml:"is_mandatory" toml:"is_mandatory"`
	Tasks       []TaskDoc `yaml:"tasks" toml:"tasks"`
}

type TaskDoc struct {
	Slug             string         `yaml:"slug" toml:"slug"`
	Title            string         `yaml:"title" toml:"title"`
	Description      string         `yaml:"description" toml:"description"`
	Instructions     string         `yaml:"instructions" toml:"instructions"`
	SortOrder        *int           `yaml:"sort_order" toml:"sort_order"`
	IsMandatory      *bool          `yaml:"is_mandatory" toml:"is_mandatory"`
	ValidationType   string         `yaml:"validation_type" toml:"validation_type"`
	ValidationConfig map[string]any `yaml:"validation_config" toml:"validation_config"`
	EstimatedMinutes *int           `yaml:"estimated_minutes" toml:"estimated_minutes"`
}

type ImportCatalogResult struct {
	Journeys int `json:"journeys"`
	Chapters int `json:"chapters"`
	Quests   int `json:"quests"`
	Tasks    int `json:"tasks"`
}

// CatalogImportService seeds authored content. It upserts by slug, so a file
// can be imported repeatedly without duplicating rows or changing ids.
type CatalogImportService interface {
	ImportCatalog(ctx context.Context, format CatalogFormat, raw []byte) (ImportCatalogResult, error)
}

type catalogImportService struct {
	log      *logger.Logger
	runner   aggregates.TxRunner
	journeys repos.JourneyRepo
	chapters repos.ChapterRepo
	quests   repos.QuestRepo
	tasks    repos.TaskRepo
	metrics  *observability.Metrics
}

func NewCatalogImportService(
	log *logger.Logger,
	runner aggregates.TxRunner,
	journeyRepo repos.JourneyRepo,
	chapterRepo repos.ChapterRepo,
	questRepo repos.QuestRepo,
	taskRepo repos.TaskRepo,
	metrics *observability.Metrics,
) CatalogImportService {
	return &catalogImportService{
		log:      log.With("service", "CatalogImportService"),
		runner:   runner,
		journeys: journeyRepo,
		chapters: chapterRepo,
		quests:   questRepo,
		tasks:    taskRepo,
		metrics:  metrics,
	}
}

// DecodeCatalog parses and validates a catalog document.
func DecodeCatalog(format CatalogFormat, raw []byte) (*CatalogFile, error) {
	var doc CatalogFile
	switch format {
	case CatalogFormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode yaml catalog: %w", err)
		}
	case CatalogFormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode toml catalog: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (f *CatalogFile) validate() error {
	if len(f.Journeys) == 0 {
		return fmt.Errorf("catalog has no journeys")
	}
	slugs := make(map[string]bool, len(f.Journeys))
	for i, j := range f.Journeys {
		if strings.TrimSpace(j.Slug) == "" {
			return fmt.Errorf("journeys[%d]: slug is required", i)
		}
		if slugs[j.Slug] {
			return fmt.Errorf("journeys[%d]: duplicate slug %q", i, j.Slug)
		}
		slugs[j.Slug] = true
		if j.RequiredXP < 0 {
			return fmt.Errorf("journey %q: required_xp must be >= 0", j.Slug)
		}
		chapterSlugs := map[string]bool{}
		for ci, ch := range j.Chapters {
			where := fmt.Sprintf("journey %q chapters[%d]", j.Slug, ci)
			if strings.TrimSpace(ch.Slug) == "" {
				return fmt.Errorf("%s: slug is required", where)
			}
			if chapterSlugs[ch.Slug] {
				return fmt.Errorf("%s: duplicate slug %q", where, ch.Slug)
			}
			chapterSlugs[ch.Slug] = true
			if ch.XPReward < 0 {
				return fmt.Errorf("%s: xp_reward must be >= 0", where)
			}
			for qi, q := range ch.Quests {
				qwhere := fmt.Sprintf("%s quests[%d]", where, qi)
				if strings.TrimSpace(q.Slug) == "" {
					return fmt.Errorf("%s: slug is required", qwhere)
				}
				for ti, t := range q.Tasks {
					twhere := fmt.Sprintf("%s tasks[%d]", qwhere, ti)
					if strings.TrimSpace(t.Slug) == "" {
						return fmt.Errorf("%s: slug is required", twhere)
					}
					cfg, err := json.Marshal(t.ValidationConfig)
					if err != nil {
						return fmt.Errorf("%s: validation_config: %w", twhere, err)
					}
					if _, err := journeys.ParseRule(journeys.ValidationType(t.ValidationType), cfg); err != nil {
						return fmt.Errorf("%s: %w", twhere, err)
					}
				}
			}
		}
	}
	for _, j := range f.Journeys {
		if j.NextJourney != "" && j.NextJourney == j.Slug {
			return fmt.Errorf("journey %q: next_journey cannot point to itself", j.Slug)
		}
	}
	return nil
}

func (s *catalogImportService) ImportCatalog(ctx context.Context, format CatalogFormat, raw []byte) (ImportCatalogResult, error) {
	const op = "Journeys.ImportCatalog"
	var res ImportCatalogResult
	doc, err := DecodeCatalog(format, raw)
	if err != nil {
		return res, domainagg.NewError(domainagg.CodeValidation, op, err.Error(), err)
	}

	err = s.runner.InTx(ctx, func(dbc dbctx.Context) error {
		ids := make(map[string]uuid.UUID, len(doc.Journeys))
		for _, jd := range doc.Journeys {
			j := &types.Journey{
				Slug:                   jd.Slug,
				Title:                  orDefault(jd.Title, jd.Slug),
				Description:            jd.Description,
				IsActive:               boolOr(jd.IsActive, true),
				AutoAssignOnActivation: jd.AutoAssignOnActivation,
				SortOrder:              jd.SortOrder,
				RequiredXP:             jd.RequiredXP,
			}
			if err := s.journeys.UpsertBySlug(dbc, j); err != nil {
				return fmt.Errorf("upsert journey %q: %w", jd.Slug, err)
			}
			ids[jd.Slug] = j.ID
			res.Journeys++

			for ci, cd := range jd.Chapters {
				ch := &types.Chapter{
					JourneyID:   j.ID,
					Slug:        cd.Slug,
					Title:       orDefault(cd.Title, cd.Slug),
					Description: cd.Description,
					SortOrder:   intOr(cd.SortOrder, ci),
					IsMandatory: boolOr(cd.IsMandatory, true),
					XPReward:    cd.XPReward,
				}
				if err := s.chapters.UpsertBySlug(dbc, ch); err != nil {
					return fmt.Errorf("upsert chapter %q/%q: %w", jd.Slug, cd.Slug, err)
				}
				res.Chapters++
				for qi, qd := range cd.Quests {
					q := &types.Quest{
						ChapterID:   ch.ID,
						Slug:        qd.Slug,
						Title:       orDefault(qd.Title, qd.Slug),
						Description: qd.Description,
						SortOrder:   intOr(qd.SortOrder, qi),
						IsMandatory: boolOr(qd.IsMandatory, true),
					}
					if err := s.quests.UpsertBySlug(dbc, q); err != nil {
						return fmt.Errorf("upsert quest %q: %w", qd.Slug, err)
					}
					res.Quests++
					for ti, td := range qd.Tasks {
						cfg, err := json.Marshal(td.ValidationConfig)
						if err != nil {
							return err
						}
						if td.ValidationConfig == nil {
							cfg = []byte("{}")
						}
						t := &types.Task{
							QuestID:          q.ID,
							Slug:             td.Slug,
							Title:            orDefault(td.Title, td.Slug),
							Description:      td.Description,
							Instructions:     td.Instructions,
							SortOrder:        intOr(td.SortOrder, ti),
							IsMandatory:      boolOr(td.IsMandatory, true),
							ValidationType:   td.ValidationType,
							ValidationConfig: datatypes.JSON(cfg),
							EstimatedMinutes: td.EstimatedMinutes,
						}
						if err := s.tasks.UpsertBySlug(dbc, t); err != nil {
							return fmt.Errorf("upsert task %q: %w", td.Slug, err)
						}
						res.Tasks++
					}
				}
			}
		}

		for _, jd := range doc.Journeys {
			var next *uuid.UUID
			if jd.NextJourney != "" {
				id, ok := ids[jd.NextJourney]
				if !ok {
					existing, err := s.journeys.GetBySlug(dbc, jd.NextJourney)
					if err != nil {
						return err
					}
					if existing == nil {
						return aggregates.ValidationError(fmt.Sprintf("journey %q: next_journey %q not found", jd.Slug, jd.NextJourney))
					}
					id = existing.ID
				}
				next = &id
			}
			if err := s.journeys.SetNextJourney(dbc, ids[jd.Slug], next); err != nil {
				return fmt.Errorf("link journey %q: %w", jd.Slug, err)
			}
		}
		return nil
	})
	if err != nil {
		return ImportCatalogResult{}, aggregates.MapError(op, err)
	}

	s.metrics.AddCatalogImport("journey", res.Journeys)
	s.metrics.AddCatalogImport("chapter", res.Chapters)
	s.metrics.AddCatalogImport("quest", res.Quests)
	s.metrics.AddCatalogImport("task", res.Tasks)
	s.log.Info("Catalog imported",
		"journeys", res.Journeys,
		"chapters", res.Chapters,
		"quests", res.Quests,
		"tasks", res.Tasks,
	)
	return res, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
