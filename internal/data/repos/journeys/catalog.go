package journeys

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/journeys-backend/internal/domain"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

const childOrder = "sort_order ASC, created_at ASC, id ASC"

type JourneyRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Journey, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Journey, error)
	GetBySlug(dbc dbctx.Context, slug string) (*types.Journey, error)
	ListActive(dbc dbctx.Context, autoAssignOnly bool) ([]*types.Journey, error)
	UpsertBySlug(dbc dbctx.Context, row *types.Journey) error
	SetNextJourney(dbc dbctx.Context, id uuid.UUID, next *uuid.UUID) error
}

type journeyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJourneyRepo(db *gorm.DB, baseLog *logger.Logger) JourneyRepo {
	return &journeyRepo{db: db, log: baseLog.With("repo", "JourneyRepo")}
}

func (r *journeyRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *journeyRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Journey, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Journey
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *journeyRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Journey, error) {
	out := []*types.Journey{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id IN ?", ids).Order(childOrder).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *journeyRepo) GetBySlug(dbc dbctx.Context, slug string) (*types.Journey, error) {
	if slug == "" {
		return nil, nil
	}
	var row types.Journey
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("slug = ?", slug).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *journeyRepo) ListActive(dbc dbctx.Context, autoAssignOnly bool) ([]*types.Journey, error) {
	out := []*types.Journey{}
	q := r.dbx(dbc).WithContext(dbc.Ctx).Where("is_active = ?", true)
	if autoAssignOnly {
		q = q.Where("auto_assign_on_activation = ?", true)
	}
	if err := q.Order(childOrder).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertBySlug inserts or refreshes a journey keyed by slug. The row's ID is
// overwritten with the stored id.
func (r *journeyRepo) UpsertBySlug(dbc dbctx.Context, row *types.Journey) error {
	if row == nil || row.Slug == "" {
		return nil
	}
	existing, err := r.GetBySlug(dbc, row.Slug)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	row.UpdatedAt = now
	if existing == nil {
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		return r.dbx(dbc).WithContext(dbc.Ctx).Create(row).Error
	}
	row.ID = existing.ID
	row.CreatedAt = existing.CreatedAt
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Journey{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{
			"title":                     row.Title,
			"description":               row.Description,
			"is_active":                 row.IsActive,
			"auto_assign_on_activation": row.AutoAssignOnActivation,
			"sort_order":                row.SortOrder,
			"required_xp":               row.RequiredXP,
			"updated_at":                now,
		}).Error
}

func (r *journeyRepo) SetNextJourney(dbc dbctx.Context, id uuid.UUID, next *uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Journey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"next_journey_id": next,
			"updated_at":      time.Now().UTC(),
		}).Error
}

type ChapterRepo interface {
	ListByJourney(dbc dbctx.Context, journeyID uuid.UUID) ([]*types.Chapter, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error)
	UpsertBySlug(dbc dbctx.Context, row *types.Chapter) error
}

type chapterRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return &chapterRepo{db: db, log: baseLog.With("repo", "ChapterRepo")}
}

func (r *chapterRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *chapterRepo) ListByJourney(dbc dbctx.Context, journeyID uuid.UUID) ([]*types.Chapter, error) {
	out := []*types.Chapter{}
	if journeyID == uuid.Nil {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("journey_id = ?", journeyID).Order(childOrder).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chapterRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chapter, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Chapter
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *chapterRepo) UpsertBySlug(dbc dbctx.Context, row *types.Chapter) error {
	if row == nil || row.JourneyID == uuid.Nil || row.Slug == "" {
		return nil
	}
	return upsertChild(r.dbx(dbc).WithContext(dbc.Ctx), row.TableName(), row, &row.ID, &row.CreatedAt, &row.UpdatedAt,
		map[string]interface{}{"journey_id": row.JourneyID, "slug": row.Slug},
		[]string{"title", "description", "sort_order", "is_mandatory", "xp_reward", "updated_at"})
}

type QuestRepo interface {
	ListByChapters(dbc dbctx.Context, chapterIDs []uuid.UUID) ([]*types.Quest, error)
	UpsertBySlug(dbc dbctx.Context, row *types.Quest) error
}

type questRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestRepo(db *gorm.DB, baseLog *logger.Logger) QuestRepo {
	return &questRepo{db: db, log: baseLog.With("repo", "QuestRepo")}
}

func (r *questRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *questRepo) ListByChapters(dbc dbctx.Context, chapterIDs []uuid.UUID) ([]*types.Quest, error) {
	out := []*types.Quest{}
	if len(chapterIDs) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("chapter_id IN ?", chapterIDs).Order(childOrder).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questRepo) UpsertBySlug(dbc dbctx.Context, row *types.Quest) error {
	if row == nil || row.ChapterID == uuid.Nil || row.Slug == "" {
		return nil
	}
	return upsertChild(r.dbx(dbc).WithContext(dbc.Ctx), row.TableName(), row, &row.ID, &row.CreatedAt, &row.UpdatedAt,
		map[string]interface{}{"chapter_id": row.ChapterID, "slug": row.Slug},
		[]string{"title", "description", "sort_order", "is_mandatory", "updated_at"})
}

type TaskRepo interface {
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Task, error)
	ListByQuests(dbc dbctx.Context, questIDs []uuid.UUID) ([]*types.Task, error)
	UpsertBySlug(dbc dbctx.Context, row *types.Task) error
}

type taskRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return &taskRepo{db: db, log: baseLog.With("repo", "TaskRepo")}
}

func (r *taskRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *taskRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Task, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var row types.Task
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *taskRepo) ListByQuests(dbc dbctx.Context, questIDs []uuid.UUID) ([]*types.Task, error) {
	out := []*types.Task{}
	if len(questIDs) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("quest_id IN ?", questIDs).Order(childOrder).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskRepo) UpsertBySlug(dbc dbctx.Context, row *types.Task) error {
	if row == nil || row.QuestID == uuid.Nil || row.Slug == "" {
		return nil
	}
	return upsertChild(r.dbx(dbc).WithContext(dbc.Ctx), row.TableName(), row, &row.ID, &row.CreatedAt, &row.UpdatedAt,
		map[string]interface{}{"quest_id": row.QuestID, "slug": row.Slug},
		[]string{"title", "description", "instructions", "sort_order", "is_mandatory",
			"validation_type", "validation_config", "estimated_minutes", "updated_at"})
}

// upsertChild writes a row keyed by (parent, slug) and reloads its stored id,
// since ON CONFLICT DO UPDATE keeps the original primary key.
func upsertChild(tx *gorm.DB, table string, row interface{}, id *uuid.UUID, createdAt, updatedAt *time.Time, keys map[string]interface{}, updates []string) error {
	now := time.Now().UTC()
	*updatedAt = now
	if createdAt.IsZero() {
		*createdAt = now
	}
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	cols := make([]clause.Column, 0, len(keys))
	for name := range keys {
		cols = append(cols, clause.Column{Name: name})
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   cols,
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(row).Error; err != nil {
		return err
	}
	var stored struct {
		ID        uuid.UUID
		CreatedAt time.Time
	}
	if err := tx.Table(table).Select("id", "created_at").Where(keys).Take(&stored).Error; err != nil {
		return err
	}
	*id = stored.ID
	*createdAt = stored.CreatedAt
	return nil
}

// CatalogStore loads whole journey trees for the engine.
type CatalogStore interface {
	LoadJourneyTree(dbc dbctx.Context, journeyID uuid.UUID) (*types.CatalogRows, error)
	// ResolveTaskJourney returns the journey id owning a task, or uuid.Nil
	// when any link in task -> quest -> chapter is missing.
	ResolveTaskJourney(dbc dbctx.Context, taskID uuid.UUID) (uuid.UUID, error)
}

type catalogStore struct {
	db       *gorm.DB
	log      *logger.Logger
	journeys JourneyRepo
	chapters ChapterRepo
	quests   QuestRepo
	tasks    TaskRepo
}

func NewCatalogStore(db *gorm.DB, baseLog *logger.Logger) CatalogStore {
	return &catalogStore{
		db:       db,
		log:      baseLog.With("repo", "CatalogStore"),
		journeys: NewJourneyRepo(db, baseLog),
		chapters: NewChapterRepo(db, baseLog),
		quests:   NewQuestRepo(db, baseLog),
		tasks:    NewTaskRepo(db, baseLog),
	}
}

// LoadJourneyTree returns nil when the journey does not exist.
func (s *catalogStore) LoadJourneyTree(dbc dbctx.Context, journeyID uuid.UUID) (*types.CatalogRows, error) {
	j, err := s.journeys.GetByID(dbc, journeyID)
	if err != nil || j == nil {
		return nil, err
	}
	chapters, err := s.chapters.ListByJourney(dbc, j.ID)
	if err != nil {
		return nil, err
	}
	chapterIDs := make([]uuid.UUID, 0, len(chapters))
	for _, ch := range chapters {
		chapterIDs = append(chapterIDs, ch.ID)
	}
	quests, err := s.quests.ListByChapters(dbc, chapterIDs)
	if err != nil {
		return nil, err
	}
	questIDs := make([]uuid.UUID, 0, len(quests))
	for _, q := range quests {
		questIDs = append(questIDs, q.ID)
	}
	tasks, err := s.tasks.ListByQuests(dbc, questIDs)
	if err != nil {
		return nil, err
	}
	return &types.CatalogRows{Journey: j, Chapters: chapters, Quests: quests, Tasks: tasks}, nil
}

func (s *catalogStore) ResolveTaskJourney(dbc dbctx.Context, taskID uuid.UUID) (uuid.UUID, error) {
	if taskID == uuid.Nil {
		return uuid.Nil, nil
	}
	db := s.db
	if dbc.Tx != nil {
		db = dbc.Tx
	}
	var out struct {
		JourneyID uuid.UUID
	}
	err := db.WithContext(dbc.Ctx).
		Table("journey_task AS t").
		Select("c.journey_id AS journey_id").
		Joins("JOIN journey_quest AS q ON q.id = t.quest_id").
		Joins("JOIN journey_chapter AS c ON c.id = q.chapter_id").
		Where("t.id = ?", taskID).
		Limit(1).
		Scan(&out).Error
	if err != nil {
		return uuid.Nil, err
	}
	return out.JourneyID, nil
}
