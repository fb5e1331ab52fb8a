package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/journeys-backend/internal/data/aggregates"
	"github.com/yungbote/journeys-backend/internal/data/repos"
	"github.com/yungbote/journeys-backend/internal/data/repos/testutil"
	types "github.com/yungbote/journeys-backend/internal/domain"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

type serviceFixture struct {
	ctx         context.Context
	db          *gorm.DB
	log         *logger.Logger
	catalog     repos.CatalogStore
	journeys    repos.JourneyRepo
	assignments repos.JourneyAssignmentRepo
	completions repos.TaskCompletionRepo
	grants      repos.ChapterXPGrantRepo
	onboarding  repos.UserOnboardingRepo
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	return newServiceFixtureOn(t, testutil.DB(t))
}

func newServiceFixtureOn(t *testing.T, gdb *gorm.DB) *serviceFixture {
	t.Helper()
	log := testutil.Logger(t)
	return &serviceFixture{
		ctx:         context.Background(),
		db:          gdb,
		log:         log,
		catalog:     repos.NewCatalogStore(gdb, log),
		journeys:    repos.NewJourneyRepo(gdb, log),
		assignments: repos.NewJourneyAssignmentRepo(gdb, log),
		completions: repos.NewTaskCompletionRepo(gdb, log),
		grants:      repos.NewChapterXPGrantRepo(gdb, log),
		onboarding:  repos.NewUserOnboardingRepo(gdb, log),
	}
}

func newChapterRepo(f *serviceFixture) repos.ChapterRepo { return repos.NewChapterRepo(f.db, f.log) }

func newQuestRepo(f *serviceFixture) repos.QuestRepo { return repos.NewQuestRepo(f.db, f.log) }

func newTaskRepo(f *serviceFixture) repos.TaskRepo { return repos.NewTaskRepo(f.db, f.log) }

func (f *serviceFixture) journeyService() JourneyService {
	return NewJourneyService(f.db, f.log, f.catalog, f.assignments, f.completions, f.grants, f.onboarding)
}

func (f *serviceFixture) progressAggregate() domainagg.JourneyProgressAggregate {
	return aggregates.NewJourneyProgressAggregate(aggregates.JourneyProgressAggregateDeps{
		Base:        aggregates.BaseDeps{DB: f.db, Log: f.log},
		Catalog:     f.catalog,
		Journeys:    f.journeys,
		Assignments: f.assignments,
		Completions: f.completions,
		Grants:      f.grants,
		Onboarding:  f.onboarding,
	})
}

func (f *serviceFixture) complete(t *testing.T, assignmentID, taskID uuid.UUID) {
	t.Helper()
	err := f.completions.Upsert(dbctx.Context{Ctx: f.ctx}, &types.TaskCompletion{
		AssignmentID:   assignmentID,
		TaskID:         taskID,
		ValidationData: datatypes.JSON([]byte(`{"checked":true}`)),
	})
	require.NoError(t, err)
}
