package services

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/journeys-backend/internal/data/aggregates"
	"github.com/yungbote/journeys-backend/internal/data/repos"
	types "github.com/yungbote/journeys-backend/internal/domain"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/modules/journeys"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

// OnboardingStatus reports whether every auto-assigned journey is done.
type OnboardingStatus struct {
	UserID      uuid.UUID  `json:"user_id"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JourneyService is the lock-free read side. Everything it returns is
// recomputed from the catalog and the completion log.
type JourneyService interface {
	GetJourneyView(ctx context.Context, userID, journeyID uuid.UUID) (*types.JourneyView, error)
	ListUserJourneys(ctx context.Context, userID uuid.UUID) ([]types.JourneySummary, error)
	UserXP(ctx context.Context, userID uuid.UUID) (int, error)
	OnboardingStatus(ctx context.Context, userID uuid.UUID) (*OnboardingStatus, error)
	GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*types.JourneyAssignment, error)
}

type journeyService struct {
	db          *gorm.DB
	log         *logger.Logger
	catalog     repos.CatalogStore
	assignments repos.JourneyAssignmentRepo
	completions repos.TaskCompletionRepo
	grants      repos.ChapterXPGrantRepo
	onboarding  repos.UserOnboardingRepo
	fanout      int
}

func NewJourneyService(
	db *gorm.DB,
	log *logger.Logger,
	catalog repos.CatalogStore,
	assignments repos.JourneyAssignmentRepo,
	completions repos.TaskCompletionRepo,
	grants repos.ChapterXPGrantRepo,
	onboarding repos.UserOnboardingRepo,
) JourneyService {
	return &journeyService{
		db:          db,
		log:         log.With("service", "JourneyService"),
		catalog:     catalog,
		assignments: assignments,
		completions: completions,
		grants:      grants,
		onboarding:  onboarding,
		fanout:      4,
	}
}

// snapshot runs fn in one read-only transaction so the assignment, the
// completion log and the grant markers all come from the same commit.
func (s *journeyService) snapshot(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

func (s *journeyService) GetJourneyView(ctx context.Context, userID, journeyID uuid.UUID) (*types.JourneyView, error) {
	const op = "Journeys.GetJourneyView"
	var view *types.JourneyView
	err := s.snapshot(ctx, func(dbc dbctx.Context) error {
		asg, err := s.assignments.GetByUserAndJourney(dbc, userID, journeyID)
		if err != nil {
			return err
		}
		if asg == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "journey is not assigned to user", nil)
		}
		rows, err := s.catalog.LoadJourneyTree(dbc, journeyID)
		if err != nil {
			return err
		}
		if rows == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "journey not found", nil)
		}
		completions, err := s.completions.ListByAssignment(dbc, asg.ID)
		if err != nil {
			return err
		}
		grants, err := s.grants.ListByAssignment(dbc, asg.ID)
		if err != nil {
			return err
		}
		view = journeys.BuildView(journeys.NewCatalog(*rows), asg, completions, grants)
		return nil
	})
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	return view, nil
}

// ListUserJourneys reads assignments and completions in one snapshot. Catalog
// trees are loaded afterwards in parallel; progression writes never touch them.
func (s *journeyService) ListUserJourneys(ctx context.Context, userID uuid.UUID) ([]types.JourneySummary, error) {
	const op = "Journeys.ListUserJourneys"
	var (
		asgs         []*types.JourneyAssignment
		byAssignment map[uuid.UUID][]*types.TaskCompletion
	)
	err := s.snapshot(ctx, func(dbc dbctx.Context) error {
		var err error
		asgs, err = s.assignments.ListByUser(dbc, userID)
		if err != nil || len(asgs) == 0 {
			return err
		}
		ids := make([]uuid.UUID, 0, len(asgs))
		for _, a := range asgs {
			ids = append(ids, a.ID)
		}
		rows, err := s.completions.ListByAssignments(dbc, ids)
		if err != nil {
			return err
		}
		byAssignment = make(map[uuid.UUID][]*types.TaskCompletion, len(asgs))
		for _, c := range rows {
			byAssignment[c.AssignmentID] = append(byAssignment[c.AssignmentID], c)
		}
		return nil
	})
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	if len(asgs) == 0 {
		return []types.JourneySummary{}, nil
	}

	out := make([]types.JourneySummary, len(asgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout)
	for i, asg := range asgs {
		g.Go(func() error {
			tree, err := s.catalog.LoadJourneyTree(dbctx.Context{Ctx: gctx}, asg.JourneyID)
			if err != nil {
				return err
			}
			if tree == nil {
				s.log.Warn("Assignment references missing journey", "assignment_id", asg.ID, "journey_id", asg.JourneyID)
				out[i] = types.JourneySummary{Assignment: *asg}
				return nil
			}
			done := journeys.CompletionSetFrom(byAssignment[asg.ID])
			out[i] = journeys.Summarize(journeys.NewCatalog(*tree), asg, done)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, aggregates.MapError(op, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Journey.SortOrder != out[j].Journey.SortOrder {
			return out[i].Journey.SortOrder < out[j].Journey.SortOrder
		}
		return out[i].Assignment.AssignedAt.Before(out[j].Assignment.AssignedAt)
	})
	return out, nil
}

func (s *journeyService) UserXP(ctx context.Context, userID uuid.UUID) (int, error) {
	total, err := s.assignments.SumXPByUser(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return 0, aggregates.MapError("Journeys.UserXP", err)
	}
	return total, nil
}

func (s *journeyService) OnboardingStatus(ctx context.Context, userID uuid.UUID) (*OnboardingStatus, error) {
	row, err := s.onboarding.Get(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, aggregates.MapError("Journeys.OnboardingStatus", err)
	}
	status := &OnboardingStatus{UserID: userID}
	if row != nil {
		at := row.CompletedAt
		status.Completed = true
		status.CompletedAt = &at
	}
	return status, nil
}

func (s *journeyService) GetAssignment(ctx context.Context, assignmentID uuid.UUID) (*types.JourneyAssignment, error) {
	const op = "Journeys.GetAssignment"
	asg, err := s.assignments.GetByID(dbctx.Context{Ctx: ctx}, assignmentID)
	if err != nil {
		return nil, aggregates.MapError(op, err)
	}
	if asg == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, "assignment not found", nil)
	}
	return asg, nil
}
