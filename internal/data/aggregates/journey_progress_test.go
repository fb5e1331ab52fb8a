package aggregates_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/journeys-backend/internal/data/aggregates"
	aggtestutil "github.com/yungbote/journeys-backend/internal/data/aggregates/testutil"
	"github.com/yungbote/journeys-backend/internal/data/repos"
	"github.com/yungbote/journeys-backend/internal/data/repos/testutil"
	types "github.com/yungbote/journeys-backend/internal/domain"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/modules/journeys"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/lock"
)

type progressFixture struct {
	ctx   context.Context
	db    *gorm.DB
	agg   domainagg.JourneyProgressAggregate
	hooks *aggtestutil.Recorder

	assignments repos.JourneyAssignmentRepo
	completions repos.TaskCompletionRepo
	grants      repos.ChapterXPGrantRepo
	onboarding  repos.UserOnboardingRepo
}

func newProgressFixture(t *testing.T) *progressFixture {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	f := &progressFixture{
		ctx:         context.Background(),
		db:          gdb,
		hooks:       &aggtestutil.Recorder{},
		assignments: repos.NewJourneyAssignmentRepo(gdb, log),
		completions: repos.NewTaskCompletionRepo(gdb, log),
		grants:      repos.NewChapterXPGrantRepo(gdb, log),
		onboarding:  repos.NewUserOnboardingRepo(gdb, log),
	}
	f.agg = aggregates.NewJourneyProgressAggregate(aggregates.JourneyProgressAggregateDeps{
		Base:        aggregates.BaseDeps{DB: gdb, Log: log, Hooks: f.hooks},
		Locker:      lock.NewKeyed(),
		Progress:    f.hooks,
		Catalog:     repos.NewCatalogStore(gdb, log),
		Journeys:    repos.NewJourneyRepo(gdb, log),
		Assignments: f.assignments,
		Completions: f.completions,
		Grants:      f.grants,
		Onboarding:  f.onboarding,
	})
	return f
}

func (f *progressFixture) seed(t *testing.T, jf testutil.JourneyFixture) *testutil.SeededJourney {
	t.Helper()
	return testutil.SeedJourney(t, f.ctx, f.db, jf)
}

func (f *progressFixture) assign(t *testing.T, userID, journeyID uuid.UUID) *types.JourneyAssignment {
	t.Helper()
	res, err := f.agg.Assign(f.ctx, domainagg.AssignJourneyInput{UserID: userID, JourneyID: journeyID})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	return res.Assignment
}

func (f *progressFixture) complete(t *testing.T, asg *types.JourneyAssignment, taskID uuid.UUID, data map[string]any) domainagg.TaskProgressResult {
	t.Helper()
	if data == nil {
		data = map[string]any{"checked": true}
	}
	res, err := f.agg.CompleteTask(f.ctx, domainagg.CompleteTaskInput{
		AssignmentID: asg.ID,
		TaskID:       taskID,
		Data:         data,
		ActorUserID:  asg.UserID,
	})
	if err != nil {
		t.Fatalf("CompleteTask(%s): %v", taskID, err)
	}
	return res
}

func (f *progressFixture) reload(t *testing.T, id uuid.UUID) *types.JourneyAssignment {
	t.Helper()
	row, err := f.assignments.GetByID(dbctx.Background(f.ctx), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if row == nil {
		t.Fatalf("assignment %s missing", id)
	}
	return row
}

func twoChapterJourney(xp int) testutil.JourneyFixture {
	return testutil.JourneyFixture{
		Active:   true,
		Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(xp), testutil.MandatoryChapter(xp)},
	}
}

func TestCompleteTaskWalksJourneyToCompletion(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, twoChapterJourney(50))
	asg := f.assign(t, uuid.New(), j.Journey.ID)

	first := f.complete(t, asg, j.Tasks[0][0].ID, nil)
	if first.XPDelta != 50 {
		t.Fatalf("first XPDelta: want=50 got=%d", first.XPDelta)
	}
	if first.Assignment.Status != types.AssignmentStatusInProgress {
		t.Fatalf("status after first: want=in_progress got=%s", first.Assignment.Status)
	}
	if first.JustCompleted {
		t.Fatalf("journey should not be complete after chapter 1")
	}
	if !first.Progress.Chapter(j.Chapters[0].ID).IsComplete {
		t.Fatalf("chapter 1 should be complete")
	}

	stored := f.reload(t, asg.ID)
	if stored.TotalXP != 50 || stored.StartedAt == nil || stored.CompletedAt != nil {
		t.Fatalf("stored after first: xp=%d started=%v completed=%v", stored.TotalXP, stored.StartedAt, stored.CompletedAt)
	}

	second := f.complete(t, asg, j.Tasks[1][0].ID, nil)
	if !second.JustCompleted {
		t.Fatalf("expected JustCompleted on final chapter")
	}
	stored = f.reload(t, asg.ID)
	if stored.TotalXP != 100 {
		t.Fatalf("total_xp: want=100 got=%d", stored.TotalXP)
	}
	if stored.Status != types.AssignmentStatusCompleted || stored.CompletedAt == nil {
		t.Fatalf("expected completed with completed_at, got status=%s completed_at=%v", stored.Status, stored.CompletedAt)
	}
	if second.Progress.Tasks.CompletionPct != 100 {
		t.Fatalf("completion pct: want=100 got=%d", second.Progress.Tasks.CompletionPct)
	}
}

func TestCompleteTaskInLockedChapterIsForbidden(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, twoChapterJourney(50))
	asg := f.assign(t, uuid.New(), j.Journey.ID)

	_, err := f.agg.CompleteTask(f.ctx, domainagg.CompleteTaskInput{
		AssignmentID: asg.ID,
		TaskID:       j.Tasks[1][0].ID,
		Data:         map[string]any{"checked": true},
	})
	if !domainagg.IsCode(err, domainagg.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if !strings.Contains(err.Error(), "complete the previous chapter first") {
		t.Fatalf("message should point at the previous chapter, got %q", err.Error())
	}
	rows, err := f.completions.ListByAssignment(dbctx.Background(f.ctx), asg.ID)
	if err != nil {
		t.Fatalf("ListByAssignment: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("locked completion must not be stored, got %d rows", len(rows))
	}
	if stored := f.reload(t, asg.ID); stored.Status != types.AssignmentStatusAssigned {
		t.Fatalf("status: want=assigned got=%s", stored.Status)
	}
}

func TestCompleteTaskRejectsInvalidSubmission(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, testutil.JourneyFixture{
		Active: true,
		Chapters: []testutil.ChapterFixture{{
			XPReward:  10,
			Mandatory: true,
			Tasks: []testutil.TaskFixture{{
				Mandatory: true,
				Type:      "multi_checkbox",
				Config:    `{"items":["A","B"]}`,
			}},
		}},
	})
	asg := f.assign(t, uuid.New(), j.Journey.ID)
	taskID := j.Tasks[0][0].ID

	_, err := f.agg.CompleteTask(f.ctx, domainagg.CompleteTaskInput{
		AssignmentID: asg.ID,
		TaskID:       taskID,
		Data:         map[string]any{"checked_items": []any{"A"}},
	})
	if !domainagg.IsCode(err, domainagg.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var rej *journeys.Rejection
	if !errors.As(err, &rej) || rej.Reason != journeys.ReasonMissingItems {
		t.Fatalf("expected missing_items rejection, got %v", err)
	}

	res := f.complete(t, asg, taskID, map[string]any{"checked_items": []any{"A", "B"}})
	if !res.JustCompleted || res.XPDelta != 10 {
		t.Fatalf("accepted submission: completed=%v xp=%d", res.JustCompleted, res.XPDelta)
	}

	completions := f.hooks.Completions()
	if len(completions) != 2 || completions[0] != "complete:rejected" || completions[1] != "complete:accepted" {
		t.Fatalf("completion observations: %v", completions)
	}
}

func TestCompleteTaskIsIdempotent(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, twoChapterJourney(50))
	asg := f.assign(t, uuid.New(), j.Journey.ID)
	taskID := j.Tasks[0][0].ID

	f.complete(t, asg, taskID, nil)
	again := f.complete(t, asg, taskID, map[string]any{"checked": true, "note": "again"})
	if again.XPDelta != 0 {
		t.Fatalf("repeat XPDelta: want=0 got=%d", again.XPDelta)
	}

	stored := f.reload(t, asg.ID)
	if stored.TotalXP != 50 {
		t.Fatalf("total_xp after repeat: want=50 got=%d", stored.TotalXP)
	}
	rows, err := f.completions.ListByAssignment(dbctx.Background(f.ctx), asg.ID)
	if err != nil {
		t.Fatalf("ListByAssignment: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("completion rows: want=1 got=%d", len(rows))
	}
	grants, err := f.grants.ListByAssignment(dbctx.Background(f.ctx), asg.ID)
	if err != nil {
		t.Fatalf("grants: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("grant markers: want=1 got=%d", len(grants))
	}
}

func TestUncompleteTaskReversesXPAndReopens(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, twoChapterJourney(50))
	asg := f.assign(t, uuid.New(), j.Journey.ID)
	f.complete(t, asg, j.Tasks[0][0].ID, nil)
	f.complete(t, asg, j.Tasks[1][0].ID, nil)

	res, err := f.agg.UncompleteTask(f.ctx, domainagg.UncompleteTaskInput{
		AssignmentID: asg.ID,
		TaskID:       j.Tasks[1][0].ID,
		ActorUserID:  asg.UserID,
	})
	if err != nil {
		t.Fatalf("UncompleteTask: %v", err)
	}
	if res.XPDelta != -50 || !res.Reopened {
		t.Fatalf("uncomplete: xp=%d reopened=%v", res.XPDelta, res.Reopened)
	}
	stored := f.reload(t, asg.ID)
	if stored.TotalXP != 50 || stored.Status != types.AssignmentStatusInProgress || stored.CompletedAt != nil {
		t.Fatalf("after reopen: xp=%d status=%s completed_at=%v", stored.TotalXP, stored.Status, stored.CompletedAt)
	}

	// Completing again grants the chapter once more.
	again := f.complete(t, asg, j.Tasks[1][0].ID, nil)
	if again.XPDelta != 50 || !again.JustCompleted {
		t.Fatalf("recomplete: xp=%d completed=%v", again.XPDelta, again.JustCompleted)
	}
	if stored := f.reload(t, asg.ID); stored.TotalXP != 100 {
		t.Fatalf("total_xp after recomplete: want=100 got=%d", stored.TotalXP)
	}
}

func TestJourneyCompletionGrantsChapterWithoutMandatoryTasks(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, testutil.JourneyFixture{
		Active: true,
		Chapters: []testutil.ChapterFixture{
			testutil.MandatoryChapter(10),
			{XPReward: 30, Mandatory: true, Tasks: []testutil.TaskFixture{{Mandatory: false}}},
		},
	})
	asg := f.assign(t, uuid.New(), j.Journey.ID)

	res := f.complete(t, asg, j.Tasks[0][0].ID, nil)
	if !res.JustCompleted || res.XPDelta != 40 {
		t.Fatalf("completion: completed=%v xp=%d", res.JustCompleted, res.XPDelta)
	}
	grants, err := f.grants.ListByAssignment(dbctx.Background(f.ctx), asg.ID)
	if err != nil || len(grants) != 2 {
		t.Fatalf("grant markers: len=%d err=%v", len(grants), err)
	}

	// The optional-only chapter stays complete, so only the first chapter's
	// XP moves on undo and redo.
	undo, err := f.agg.UncompleteTask(f.ctx, domainagg.UncompleteTaskInput{AssignmentID: asg.ID, TaskID: j.Tasks[0][0].ID})
	if err != nil {
		t.Fatalf("UncompleteTask: %v", err)
	}
	if undo.XPDelta != -10 || !undo.Reopened {
		t.Fatalf("undo: xp=%d reopened=%v", undo.XPDelta, undo.Reopened)
	}
	redo := f.complete(t, asg, j.Tasks[0][0].ID, nil)
	if redo.XPDelta != 10 || !redo.JustCompleted {
		t.Fatalf("redo: xp=%d completed=%v", redo.XPDelta, redo.JustCompleted)
	}
	if stored := f.reload(t, asg.ID); stored.TotalXP != 40 {
		t.Fatalf("total_xp: want=40 got=%d", stored.TotalXP)
	}
}

func TestUncompleteTaskNeverReturnsToAssigned(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, twoChapterJourney(50))
	asg := f.assign(t, uuid.New(), j.Journey.ID)
	f.complete(t, asg, j.Tasks[0][0].ID, nil)

	for i := 0; i < 2; i++ {
		if _, err := f.agg.UncompleteTask(f.ctx, domainagg.UncompleteTaskInput{
			AssignmentID: asg.ID,
			TaskID:       j.Tasks[0][0].ID,
		}); err != nil {
			t.Fatalf("UncompleteTask #%d: %v", i, err)
		}
	}
	stored := f.reload(t, asg.ID)
	if stored.Status != types.AssignmentStatusInProgress {
		t.Fatalf("status: want=in_progress got=%s", stored.Status)
	}
	if stored.TotalXP != 0 {
		t.Fatalf("total_xp: want=0 got=%d", stored.TotalXP)
	}
}

func TestChainAssignsNextJourneyOnceXPSuffices(t *testing.T) {
	f := newProgressFixture(t)
	j2 := f.seed(t, testutil.JourneyFixture{
		Active:     true,
		RequiredXP: 100,
		Chapters:   []testutil.ChapterFixture{testutil.MandatoryChapter(10)},
	})
	j1 := f.seed(t, testutil.JourneyFixture{
		Active:   true,
		Next:     testutil.PtrUUID(j2.Journey.ID),
		Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(80)},
	})
	side := f.seed(t, twoChapterJourney(20))

	userID := uuid.New()
	a1 := f.assign(t, userID, j1.Journey.ID)
	aSide := f.assign(t, userID, side.Journey.ID)

	res := f.complete(t, a1, j1.Tasks[0][0].ID, nil)
	if !res.JustCompleted {
		t.Fatalf("j1 should be complete")
	}
	if len(res.ChainAssigned) != 0 {
		t.Fatalf("80 XP must not chain into a 100 XP journey")
	}
	if got, _ := f.assignments.GetByUserAndJourney(dbctx.Background(f.ctx), userID, j2.Journey.ID); got != nil {
		t.Fatalf("j2 assigned too early")
	}

	res = f.complete(t, aSide, side.Tasks[0][0].ID, nil)
	if res.XPDelta != 20 {
		t.Fatalf("side XPDelta: want=20 got=%d", res.XPDelta)
	}
	if len(res.ChainAssigned) != 1 || res.ChainAssigned[0].JourneyID != j2.Journey.ID {
		t.Fatalf("expected chain into j2, got %+v", res.ChainAssigned)
	}
	got, err := f.assignments.GetByUserAndJourney(dbctx.Background(f.ctx), userID, j2.Journey.ID)
	if err != nil || got == nil {
		t.Fatalf("j2 assignment: row=%v err=%v", got, err)
	}
	if got.Source != types.AssignmentSourceChain || got.Status != types.AssignmentStatusAssigned {
		t.Fatalf("chained row: source=%s status=%s", got.Source, got.Status)
	}
}

// ledgerRecorder notes the order in which whole-ledger reads and the user
// lock reach the assignment repo.
type ledgerRecorder struct {
	repos.JourneyAssignmentRepo
	mu    sync.Mutex
	calls []string
}

func (r *ledgerRecorder) LockUser(dbc dbctx.Context, userID uuid.UUID) error {
	r.record("lock_user")
	return r.JourneyAssignmentRepo.LockUser(dbc, userID)
}

func (r *ledgerRecorder) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.JourneyAssignment, error) {
	r.record("list_by_user")
	return r.JourneyAssignmentRepo.ListByUser(dbc, userID)
}

func (r *ledgerRecorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *ledgerRecorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

func TestChainDecidesUnderUserLockAcrossAssignments(t *testing.T) {
	f := newProgressFixture(t)
	log := testutil.Logger(t)
	rec := &ledgerRecorder{JourneyAssignmentRepo: f.assignments}
	agg := aggregates.NewJourneyProgressAggregate(aggregates.JourneyProgressAggregateDeps{
		Base:        aggregates.BaseDeps{DB: f.db, Log: log},
		Locker:      lock.NewKeyed(),
		Catalog:     repos.NewCatalogStore(f.db, log),
		Journeys:    repos.NewJourneyRepo(f.db, log),
		Assignments: rec,
		Completions: f.completions,
		Grants:      f.grants,
		Onboarding:  f.onboarding,
	})

	j2 := f.seed(t, testutil.JourneyFixture{
		Active:     true,
		RequiredXP: 100,
		Chapters:   []testutil.ChapterFixture{testutil.MandatoryChapter(10)},
	})
	j1 := f.seed(t, testutil.JourneyFixture{
		Active:   true,
		Next:     testutil.PtrUUID(j2.Journey.ID),
		Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(80)},
	})
	sideA := f.seed(t, twoChapterJourney(10))
	sideB := f.seed(t, twoChapterJourney(10))

	userID := uuid.New()
	a1 := f.assign(t, userID, j1.Journey.ID)
	aA := f.assign(t, userID, sideA.Journey.ID)
	aB := f.assign(t, userID, sideB.Journey.ID)

	complete := func(asg *types.JourneyAssignment, taskID uuid.UUID) domainagg.TaskProgressResult {
		t.Helper()
		res, err := agg.CompleteTask(f.ctx, domainagg.CompleteTaskInput{
			AssignmentID: asg.ID,
			TaskID:       taskID,
			Data:         map[string]any{"checked": true},
			ActorUserID:  userID,
		})
		if err != nil {
			t.Fatalf("CompleteTask: %v", err)
		}
		return res
	}
	lockedFirst := func(step string) {
		t.Helper()
		calls := rec.take()
		if len(calls) == 0 || calls[0] != "lock_user" {
			t.Fatalf("%s: user lock must precede ledger reads, got %v", step, calls)
		}
	}

	complete(a1, j1.Tasks[0][0].ID)
	lockedFirst("journey completion")

	if res := complete(aA, sideA.Tasks[0][0].ID); len(res.ChainAssigned) != 0 {
		t.Fatalf("90 XP must not chain, got %+v", res.ChainAssigned)
	}
	lockedFirst("first side grant")

	res := complete(aB, sideB.Tasks[0][0].ID)
	lockedFirst("second side grant")
	if len(res.ChainAssigned) != 1 || res.ChainAssigned[0].JourneyID != j2.Journey.ID {
		t.Fatalf("XP from two assignments should open j2, got %+v", res.ChainAssigned)
	}

	complete(aB, sideB.Tasks[0][0].ID)
	if calls := rec.take(); len(calls) != 0 {
		t.Fatalf("a repeat completion changes no XP and needs no ledger read, got %v", calls)
	}
}

func TestChainSkipsInactiveTarget(t *testing.T) {
	f := newProgressFixture(t)
	j2 := f.seed(t, testutil.JourneyFixture{
		Active:   false,
		Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(10)},
	})
	j1 := f.seed(t, testutil.JourneyFixture{
		Active:   true,
		Next:     testutil.PtrUUID(j2.Journey.ID),
		Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(10)},
	})
	a1 := f.assign(t, uuid.New(), j1.Journey.ID)
	res := f.complete(t, a1, j1.Tasks[0][0].ID, nil)
	if len(res.ChainAssigned) != 0 {
		t.Fatalf("inactive journey must not be chained")
	}
}

func TestCompleteTaskOwnershipAndMembership(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, twoChapterJourney(10))
	other := f.seed(t, twoChapterJourney(10))
	asg := f.assign(t, uuid.New(), j.Journey.ID)

	_, err := f.agg.CompleteTask(f.ctx, domainagg.CompleteTaskInput{
		AssignmentID: asg.ID,
		TaskID:       j.Tasks[0][0].ID,
		Data:         map[string]any{"checked": true},
		ActorUserID:  uuid.New(),
	})
	if !domainagg.IsCode(err, domainagg.CodeForbidden) {
		t.Fatalf("foreign actor: expected forbidden, got %v", err)
	}

	_, err = f.agg.CompleteTask(f.ctx, domainagg.CompleteTaskInput{
		AssignmentID: asg.ID,
		TaskID:       other.Tasks[0][0].ID,
		Data:         map[string]any{"checked": true},
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("task of another journey: expected not found, got %v", err)
	}

	_, err = f.agg.CompleteTask(f.ctx, domainagg.CompleteTaskInput{
		AssignmentID: uuid.New(),
		TaskID:       j.Tasks[0][0].ID,
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown assignment: expected not found, got %v", err)
	}
}

func TestAssignRules(t *testing.T) {
	f := newProgressFixture(t)
	active := f.seed(t, twoChapterJourney(10))
	inactive := f.seed(t, testutil.JourneyFixture{Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(10)}})
	gated := f.seed(t, testutil.JourneyFixture{Active: true, RequiredXP: 500, Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(10)}})
	userID := uuid.New()

	asg := f.assign(t, userID, active.Journey.ID)
	if asg.Status != types.AssignmentStatusAssigned || asg.Source != types.AssignmentSourceManual || asg.TotalXP != 0 {
		t.Fatalf("new assignment: %+v", asg)
	}

	_, err := f.agg.Assign(f.ctx, domainagg.AssignJourneyInput{UserID: userID, JourneyID: active.Journey.ID})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("duplicate: expected conflict, got %v", err)
	}
	_, err = f.agg.Assign(f.ctx, domainagg.AssignJourneyInput{UserID: userID, JourneyID: inactive.Journey.ID})
	if !domainagg.IsCode(err, domainagg.CodePreconditionFailed) {
		t.Fatalf("inactive: expected precondition failure, got %v", err)
	}
	_, err = f.agg.Assign(f.ctx, domainagg.AssignJourneyInput{UserID: userID, JourneyID: uuid.New()})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("unknown journey: expected not found, got %v", err)
	}
	// Manual assignment ignores required_xp.
	f.assign(t, userID, gated.Journey.ID)

	if got := f.hooks.Conflicts(); len(got) != 1 {
		t.Fatalf("conflict hook count: want=1 got=%d", len(got))
	}
}

func TestUnassignRemovesProgress(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, twoChapterJourney(10))
	userID := uuid.New()
	asg := f.assign(t, userID, j.Journey.ID)
	f.complete(t, asg, j.Tasks[0][0].ID, nil)

	if err := f.agg.Unassign(f.ctx, domainagg.UnassignJourneyInput{UserID: userID, JourneyID: j.Journey.ID}); err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	dbc := dbctx.Background(f.ctx)
	if row, _ := f.assignments.GetByID(dbc, asg.ID); row != nil {
		t.Fatalf("assignment still present")
	}
	if rows, _ := f.completions.ListByAssignment(dbc, asg.ID); len(rows) != 0 {
		t.Fatalf("completions still present: %d", len(rows))
	}
	if rows, _ := f.grants.ListByAssignment(dbc, asg.ID); len(rows) != 0 {
		t.Fatalf("grants still present: %d", len(rows))
	}

	err := f.agg.Unassign(f.ctx, domainagg.UnassignJourneyInput{UserID: userID, JourneyID: j.Journey.ID})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("second unassign: expected not found, got %v", err)
	}

	// Reassigning starts from zero.
	again := f.assign(t, userID, j.Journey.ID)
	if again.TotalXP != 0 {
		t.Fatalf("reassigned total_xp: %d", again.TotalXP)
	}
}

func TestAssignOnActivationAndOnboarding(t *testing.T) {
	f := newProgressFixture(t)
	auto1 := f.seed(t, testutil.JourneyFixture{Active: true, AutoAssign: true, Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(5)}})
	auto2 := f.seed(t, testutil.JourneyFixture{Active: true, AutoAssign: true, Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(5)}})
	f.seed(t, testutil.JourneyFixture{Active: false, AutoAssign: true, Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(5)}})
	f.seed(t, testutil.JourneyFixture{Active: true, Chapters: []testutil.ChapterFixture{testutil.MandatoryChapter(5)}})
	userID := uuid.New()

	res, err := f.agg.AssignOnActivation(f.ctx, domainagg.AssignOnActivationInput{UserID: userID})
	if err != nil {
		t.Fatalf("AssignOnActivation: %v", err)
	}
	if len(res.Assigned) != 2 {
		t.Fatalf("assigned: want=2 got=%d", len(res.Assigned))
	}
	res, err = f.agg.AssignOnActivation(f.ctx, domainagg.AssignOnActivationInput{UserID: userID})
	if err != nil {
		t.Fatalf("AssignOnActivation again: %v", err)
	}
	if len(res.Assigned) != 0 {
		t.Fatalf("second activation assigned %d", len(res.Assigned))
	}

	dbc := dbctx.Background(f.ctx)
	a1, _ := f.assignments.GetByUserAndJourney(dbc, userID, auto1.Journey.ID)
	a2, _ := f.assignments.GetByUserAndJourney(dbc, userID, auto2.Journey.ID)
	if a1 == nil || a2 == nil || a1.Source != types.AssignmentSourceActivation {
		t.Fatalf("activation rows missing: %v %v", a1, a2)
	}

	first := f.complete(t, a1, auto1.Tasks[0][0].ID, nil)
	if first.OnboardingDone {
		t.Fatalf("onboarding must wait for every auto-assign journey")
	}
	second := f.complete(t, a2, auto2.Tasks[0][0].ID, nil)
	if !second.OnboardingDone {
		t.Fatalf("expected onboarding completion")
	}
	row, err := f.onboarding.Get(dbc, userID)
	if err != nil || row == nil {
		t.Fatalf("onboarding row: %v %v", row, err)
	}
}

func TestConcurrentCompletionsGrantEachChapterOnce(t *testing.T) {
	f := newProgressFixture(t)
	j := f.seed(t, testutil.JourneyFixture{
		Active: true,
		Chapters: []testutil.ChapterFixture{{
			XPReward:  30,
			Mandatory: true,
			Tasks: []testutil.TaskFixture{
				{Mandatory: true}, {Mandatory: true}, {Mandatory: true}, {Mandatory: true},
			},
		}},
	})
	asg := f.assign(t, uuid.New(), j.Journey.ID)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for round := 0; round < 2; round++ {
		for _, task := range j.Tasks[0] {
			wg.Add(1)
			go func(id uuid.UUID) {
				defer wg.Done()
				_, err := f.agg.CompleteTask(f.ctx, domainagg.CompleteTaskInput{
					AssignmentID: asg.ID,
					TaskID:       id,
					Data:         map[string]any{"checked": true},
				})
				errs <- err
			}(task.ID)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent CompleteTask: %v", err)
		}
	}

	stored := f.reload(t, asg.ID)
	if stored.TotalXP != 30 {
		t.Fatalf("total_xp: want=30 got=%d", stored.TotalXP)
	}
	if stored.Status != types.AssignmentStatusCompleted {
		t.Fatalf("status: want=completed got=%s", stored.Status)
	}
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (lock.Unlock, error) {
	return nil, errors.New("lock unavailable")
}

func TestLockFailureIsRetryable(t *testing.T) {
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	hooks := &aggtestutil.Recorder{}
	agg := aggregates.NewJourneyProgressAggregate(aggregates.JourneyProgressAggregateDeps{
		Base:        aggregates.BaseDeps{DB: gdb, Log: log, Hooks: hooks},
		Locker:      failingLocker{},
		Catalog:     repos.NewCatalogStore(gdb, log),
		Journeys:    repos.NewJourneyRepo(gdb, log),
		Assignments: repos.NewJourneyAssignmentRepo(gdb, log),
		Completions: repos.NewTaskCompletionRepo(gdb, log),
		Grants:      repos.NewChapterXPGrantRepo(gdb, log),
		Onboarding:  repos.NewUserOnboardingRepo(gdb, log),
	})

	_, err := agg.CompleteTask(context.Background(), domainagg.CompleteTaskInput{AssignmentID: uuid.New(), TaskID: uuid.New()})
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("expected retryable, got %v", err)
	}
	if got := hooks.Retries(); len(got) != 1 {
		t.Fatalf("retry hook count: want=1 got=%d", len(got))
	}
}

func TestUnconfiguredAggregateFailsFast(t *testing.T) {
	agg := aggregates.NewJourneyProgressAggregate(aggregates.JourneyProgressAggregateDeps{})
	_, err := agg.CompleteTask(context.Background(), domainagg.CompleteTaskInput{AssignmentID: uuid.New(), TaskID: uuid.New()})
	if !domainagg.IsCode(err, domainagg.CodeInternal) {
		t.Fatalf("expected internal, got %v", err)
	}
}
