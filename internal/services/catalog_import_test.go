package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/journeys-backend/internal/data/aggregates"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
)

const yamlCatalog = `
journeys:
  - slug: welcome
    title: Welcome
    auto_assign_on_activation: true
    next_journey: deep-dive
    chapters:
      - slug: basics
        xp_reward: 50
        quests:
          - slug: setup
            tasks:
              - slug: read-handbook
                validation_type: checkbox
              - slug: write-intro
                validation_type: text_acknowledge
                validation_config:
                  min_text_length: 10
              - slug: upload-photo
                validation_type: file_upload
                is_mandatory: false
                validation_config:
                  allowed_types: ["image/*"]
                  max_size_mb: 5
  - slug: deep-dive
    title: Deep dive
    required_xp: 100
    chapters:
      - slug: tools
        xp_reward: 30
        quests:
          - slug: tour
            tasks:
              - slug: pick-tools
                validation_type: multi_checkbox
                validation_config:
                  items: [editor, terminal]
`

const tomlCatalog = `
[[journeys]]
slug = "security"
title = "Security"
is_active = false

[[journeys.chapters]]
slug = "passwords"
xp_reward = 10

[[journeys.chapters.quests]]
slug = "manager"

[[journeys.chapters.quests.tasks]]
slug = "visit-docs"
validation_type = "link_visit"
estimated_minutes = 5

[journeys.chapters.quests.tasks.validation_config]
url = "https://example.com/security"
`

func newImportService(f *serviceFixture) CatalogImportService {
	return NewCatalogImportService(
		f.log,
		aggregates.NewGormTxRunner(f.db),
		f.journeys,
		newChapterRepo(f),
		newQuestRepo(f),
		newTaskRepo(f),
		nil,
	)
}

func TestImportCatalog_YAMLIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	svc := newImportService(f)

	res, err := svc.ImportCatalog(f.ctx, CatalogFormatYAML, []byte(yamlCatalog))
	require.NoError(t, err)
	assert.Equal(t, ImportCatalogResult{Journeys: 2, Chapters: 2, Quests: 2, Tasks: 4}, res)

	dbc := dbctx.Context{Ctx: f.ctx}
	welcome, err := f.journeys.GetBySlug(dbc, "welcome")
	require.NoError(t, err)
	deep, err := f.journeys.GetBySlug(dbc, "deep-dive")
	require.NoError(t, err)
	require.NotNil(t, welcome)
	require.NotNil(t, deep)
	assert.True(t, welcome.IsActive)
	assert.True(t, welcome.AutoAssignOnActivation)
	require.NotNil(t, welcome.NextJourneyID)
	assert.Equal(t, deep.ID, *welcome.NextJourneyID)
	assert.Equal(t, 100, deep.RequiredXP)

	tree, err := f.catalog.LoadJourneyTree(dbc, welcome.ID)
	require.NoError(t, err)
	require.Len(t, tree.Tasks, 3)
	taskIDs := map[string]string{}
	for _, task := range tree.Tasks {
		taskIDs[task.Slug] = task.ID.String()
		if task.Slug == "upload-photo" {
			assert.False(t, task.IsMandatory)
			assert.JSONEq(t, `{"allowed_types":["image/*"],"max_size_mb":5}`, string(task.ValidationConfig))
		}
	}

	_, err = svc.ImportCatalog(f.ctx, CatalogFormatYAML, []byte(yamlCatalog))
	require.NoError(t, err)
	again, err := f.journeys.GetBySlug(dbc, "welcome")
	require.NoError(t, err)
	assert.Equal(t, welcome.ID, again.ID)
	tree, err = f.catalog.LoadJourneyTree(dbc, welcome.ID)
	require.NoError(t, err)
	require.Len(t, tree.Tasks, 3)
	for _, task := range tree.Tasks {
		assert.Equal(t, taskIDs[task.Slug], task.ID.String(), "task %s changed id", task.Slug)
	}
}

func TestImportCatalog_TOML(t *testing.T) {
	f := newServiceFixture(t)
	res, err := newImportService(f).ImportCatalog(f.ctx, CatalogFormatTOML, []byte(tomlCatalog))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Tasks)

	j, err := f.journeys.GetBySlug(dbctx.Context{Ctx: f.ctx}, "security")
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.False(t, j.IsActive)

	tree, err := f.catalog.LoadJourneyTree(dbctx.Context{Ctx: f.ctx}, j.ID)
	require.NoError(t, err)
	require.Len(t, tree.Tasks, 1)
	require.NotNil(t, tree.Tasks[0].EstimatedMinutes)
	assert.Equal(t, 5, *tree.Tasks[0].EstimatedMinutes)
	assert.Equal(t, "link_visit", tree.Tasks[0].ValidationType)
}

func TestImportCatalog_Invalid(t *testing.T) {
	f := newServiceFixture(t)
	svc := newImportService(f)

	cases := map[string]string{
		"unknown validation type": "journeys:\n  - slug: a\n    chapters:\n      - slug: c\n        quests:\n          - slug: q\n            tasks:\n              - slug: t\n                validation_type: quiz\n",
		"missing slug":            "journeys:\n  - title: nope\n",
		"unknown field":           "journeys:\n  - slug: a\n    colour: blue\n",
		"self chain":              "journeys:\n  - slug: a\n    next_journey: a\n",
		"empty":                   "journeys: []\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ImportCatalog(f.ctx, CatalogFormatYAML, []byte(doc))
			assert.True(t, domainagg.IsCode(err, domainagg.CodeValidation), "got %v", err)
		})
	}

	_, err := svc.ImportCatalog(f.ctx, CatalogFormatYAML, []byte("journeys:\n  - slug: a\n    next_journey: missing\n"))
	assert.True(t, domainagg.IsCode(err, domainagg.CodeValidation), "got %v", err)
	j, err := f.journeys.GetBySlug(dbctx.Context{Ctx: f.ctx}, "a")
	require.NoError(t, err)
	assert.Nil(t, j, "failed import must roll back")
}

func TestCatalogFormatFromPath(t *testing.T) {
	for p, want := range map[string]CatalogFormat{"a.yaml": CatalogFormatYAML, "b.YML": CatalogFormatYAML, "c.toml": CatalogFormatTOML} {
		got, err := CatalogFormatFromPath(p)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := CatalogFormatFromPath("catalog.json")
	assert.Error(t, err)
}
