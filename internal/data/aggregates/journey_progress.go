package aggregates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/yungbote/journeys-backend/internal/data/repos"
	types "github.com/yungbote/journeys-backend/internal/domain"
	domainagg "github.com/yungbote/journeys-backend/internal/domain/aggregates"
	"github.com/yungbote/journeys-backend/internal/modules/journeys"
	"github.com/yungbote/journeys-backend/internal/platform/dbctx"
	"github.com/yungbote/journeys-backend/internal/platform/lock"
)

type JourneyProgressAggregateDeps struct {
	Base BaseDeps

	// Locker serializes writes per assignment ahead of the row lock. Nil
	// leaves serialization to the database alone.
	Locker   lock.Locker
	Progress ProgressHooks
	Now      func() time.Time

	Catalog     repos.CatalogStore
	Journeys    repos.JourneyRepo
	Assignments repos.JourneyAssignmentRepo
	Completions repos.TaskCompletionRepo
	Grants      repos.ChapterXPGrantRepo
	Onboarding  repos.UserOnboardingRepo
}

type journeyProgressAggregate struct {
	deps   JourneyProgressAggregateDeps
	tracer trace.Tracer
}

func NewJourneyProgressAggregate(deps JourneyProgressAggregateDeps) domainagg.JourneyProgressAggregate {
	deps.Base = deps.Base.withDefaults()
	if deps.Progress == nil {
		deps.Progress = noopProgressHooks{}
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &journeyProgressAggregate{deps: deps, tracer: otel.Tracer("journeys/aggregates")}
}

func (a *journeyProgressAggregate) configured() bool {
	d := a.deps
	return d.Catalog != nil && d.Journeys != nil && d.Assignments != nil &&
		d.Completions != nil && d.Grants != nil && d.Onboarding != nil
}

func (a *journeyProgressAggregate) Assign(ctx context.Context, in domainagg.AssignJourneyInput) (domainagg.AssignJourneyResult, error) {
	const op = "Journeys.JourneyProgress.Assign"
	var out domainagg.AssignJourneyResult
	if in.UserID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing user_id", nil)
	}
	if in.JourneyID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing journey_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "journey progress repos not configured", nil)
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = types.AssignmentSourceManual
	}

	ctx, span := a.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("journey_id", in.JourneyID.String()),
		attribute.String("source", source),
	))
	defer span.End()

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		j, err := a.deps.Journeys.GetByID(dbc, in.JourneyID)
		if err != nil {
			return err
		}
		if j == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("journey not found: %s", in.JourneyID), nil)
		}
		if !j.IsActive {
			return PreconditionError("journey is not active")
		}
		existing, err := a.deps.Assignments.GetByUserAndJourney(dbc, in.UserID, in.JourneyID)
		if err != nil {
			return err
		}
		if existing != nil {
			return ConflictError("journey already assigned")
		}
		row := &types.JourneyAssignment{
			UserID:     in.UserID,
			JourneyID:  in.JourneyID,
			Status:     types.AssignmentStatusAssigned,
			Source:     source,
			AssignedAt: a.deps.Now(),
		}
		if err := a.deps.Assignments.Create(dbc, row); err != nil {
			return err
		}
		out.Assignment = row
		return nil
	})
	endSpan(span, err)
	return out, err
}

func (a *journeyProgressAggregate) Unassign(ctx context.Context, in domainagg.UnassignJourneyInput) error {
	const op = "Journeys.JourneyProgress.Unassign"
	if in.UserID == uuid.Nil || in.JourneyID == uuid.Nil {
		return domainagg.NewError(domainagg.CodeValidation, op, "missing user_id or journey_id", nil)
	}
	if !a.configured() {
		return domainagg.NewError(domainagg.CodeInternal, op, "journey progress repos not configured", nil)
	}

	ctx, span := a.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("journey_id", in.JourneyID.String())))
	defer span.End()

	existing, err := a.deps.Assignments.GetByUserAndJourney(dbctx.Background(ctx), in.UserID, in.JourneyID)
	if err != nil {
		err = MapError(op, err)
		endSpan(span, err)
		return err
	}
	if existing == nil {
		err = domainagg.NewError(domainagg.CodeNotFound, op, "assignment not found", nil)
		endSpan(span, err)
		return err
	}

	err = lockedWrite(ctx, a.deps.Base, a.deps.Locker, op, existing.ID, func(dbc dbctx.Context) error {
		asg, err := a.deps.Assignments.LockByID(dbc, existing.ID)
		if err != nil {
			return err
		}
		if asg == nil {
			return domainagg.NewError(domainagg.CodeNotFound, op, "assignment not found", nil)
		}
		if err := a.deps.Completions.DeleteByAssignment(dbc, asg.ID); err != nil {
			return err
		}
		if err := a.deps.Grants.DeleteByAssignment(dbc, asg.ID); err != nil {
			return err
		}
		return a.deps.Assignments.DeleteByID(dbc, asg.ID)
	})
	endSpan(span, err)
	return err
}

func (a *journeyProgressAggregate) AssignOnActivation(ctx context.Context, in domainagg.AssignOnActivationInput) (domainagg.AssignOnActivationResult, error) {
	const op = "Journeys.JourneyProgress.AssignOnActivation"
	var out domainagg.AssignOnActivationResult
	if in.UserID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing user_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "journey progress repos not configured", nil)
	}

	ctx, span := a.tracer.Start(ctx, op)
	defer span.End()

	err := executeWrite(ctx, a.deps.Base, op, func(dbc dbctx.Context) error {
		autos, err := a.deps.Journeys.ListActive(dbc, true)
		if err != nil {
			return err
		}
		now := a.deps.Now()
		for _, j := range autos {
			row := &types.JourneyAssignment{
				UserID:     in.UserID,
				JourneyID:  j.ID,
				Status:     types.AssignmentStatusAssigned,
				Source:     types.AssignmentSourceActivation,
				AssignedAt: now,
			}
			created, err := a.deps.Assignments.CreateIfAbsent(dbc, row)
			if err != nil {
				return err
			}
			if created {
				out.Assigned = append(out.Assigned, row)
			}
		}
		return nil
	})
	span.SetAttributes(attribute.Int("assigned", len(out.Assigned)))
	endSpan(span, err)
	return out, err
}

func (a *journeyProgressAggregate) CompleteTask(ctx context.Context, in domainagg.CompleteTaskInput) (domainagg.TaskProgressResult, error) {
	const op = "Journeys.JourneyProgress.CompleteTask"
	var out domainagg.TaskProgressResult
	if in.AssignmentID == uuid.Nil || in.TaskID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing assignment_id or task_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "journey progress repos not configured", nil)
	}

	ctx, span := a.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("assignment_id", in.AssignmentID.String()),
		attribute.String("task_id", in.TaskID.String()),
	))
	defer span.End()

	err := lockedWrite(ctx, a.deps.Base, a.deps.Locker, op, in.AssignmentID, func(dbc dbctx.Context) error {
		st, err := a.loadForTask(dbc, op, in.AssignmentID, in.TaskID, in.ActorUserID)
		if err != nil {
			return err
		}

		progress := journeys.Aggregate(st.catalog, st.done)
		locks := journeys.ComputeLockState(st.catalog, progress, st.done)
		if locks.IsLocked(st.lineage.Chapter.ID) {
			return ForbiddenError(lockedChapterMessage)
		}

		rule, err := journeys.RuleForTask(st.lineage.Task)
		if err != nil {
			return InvariantError(fmt.Sprintf("task %s: %v", st.lineage.Task.ID, err))
		}
		if rej := journeys.Check(rule, in.Data); rej != nil {
			return RejectionError(rej)
		}

		var payload datatypes.JSON
		if len(in.Data) > 0 {
			raw, err := json.Marshal(in.Data)
			if err != nil {
				return ValidationError("validation_data is not serializable")
			}
			payload = datatypes.JSON(raw)
		}
		now := a.deps.Now()
		if err := a.deps.Completions.Upsert(dbc, &types.TaskCompletion{
			AssignmentID:   st.assignment.ID,
			TaskID:         in.TaskID,
			ValidationData: payload,
			CompletedAt:    now,
		}); err != nil {
			return err
		}
		st.done[in.TaskID] = struct{}{}

		out, err = a.reconcile(dbc, op, st, now)
		return err
	})

	a.deps.Progress.ObserveTaskCompletion("complete", completionResult(err))
	a.observeResult(out, err)
	endSpan(span, err)
	return out, err
}

func (a *journeyProgressAggregate) UncompleteTask(ctx context.Context, in domainagg.UncompleteTaskInput) (domainagg.TaskProgressResult, error) {
	const op = "Journeys.JourneyProgress.UncompleteTask"
	var out domainagg.TaskProgressResult
	if in.AssignmentID == uuid.Nil || in.TaskID == uuid.Nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing assignment_id or task_id", nil)
	}
	if !a.configured() {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "journey progress repos not configured", nil)
	}

	ctx, span := a.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("assignment_id", in.AssignmentID.String()),
		attribute.String("task_id", in.TaskID.String()),
	))
	defer span.End()

	err := lockedWrite(ctx, a.deps.Base, a.deps.Locker, op, in.AssignmentID, func(dbc dbctx.Context) error {
		st, err := a.loadForTask(dbc, op, in.AssignmentID, in.TaskID, in.ActorUserID)
		if err != nil {
			return err
		}
		if _, err := a.deps.Completions.Remove(dbc, st.assignment.ID, in.TaskID); err != nil {
			return err
		}
		delete(st.done, in.TaskID)

		out, err = a.reconcile(dbc, op, st, a.deps.Now())
		return err
	})

	a.deps.Progress.ObserveTaskCompletion("uncomplete", completionResult(err))
	a.observeResult(out, err)
	endSpan(span, err)
	return out, err
}

const lockedChapterMessage = "complete the previous chapter first"

type taskWriteState struct {
	assignment *types.JourneyAssignment
	catalog    *journeys.Catalog
	lineage    journeys.Lineage
	done       journeys.CompletionSet
}

// loadForTask locks the assignment and resolves the task inside the
// assignment's journey. Every read goes through the write transaction.
func (a *journeyProgressAggregate) loadForTask(dbc dbctx.Context, op string, assignmentID, taskID, actorID uuid.UUID) (*taskWriteState, error) {
	asg, err := a.deps.Assignments.LockByID(dbc, assignmentID)
	if err != nil {
		return nil, err
	}
	if asg == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("assignment not found: %s", assignmentID), nil)
	}
	if actorID != uuid.Nil && asg.UserID != actorID {
		return nil, ForbiddenError("assignment belongs to another user")
	}
	if !isKnownAssignmentStatus(asg.Status) {
		return nil, InvariantError(fmt.Sprintf("assignment has unknown status %q", asg.Status))
	}

	journeyID, err := a.deps.Catalog.ResolveTaskJourney(dbc, taskID)
	if err != nil {
		return nil, err
	}
	if journeyID == uuid.Nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("task not found: %s", taskID), nil)
	}
	if journeyID != asg.JourneyID {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, "task is not part of the assigned journey", nil)
	}

	rows, err := a.deps.Catalog.LoadJourneyTree(dbc, asg.JourneyID)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("journey not found: %s", asg.JourneyID), nil)
	}
	cat := journeys.NewCatalog(*rows)
	lineage, ok := cat.Lineage(taskID)
	if !ok {
		return nil, domainagg.NewError(domainagg.CodeNotFound, op, fmt.Sprintf("task not found: %s", taskID), nil)
	}

	completions, err := a.deps.Completions.ListByAssignment(dbc, asg.ID)
	if err != nil {
		return nil, err
	}
	return &taskWriteState{
		assignment: asg,
		catalog:    cat,
		lineage:    lineage,
		done:       journeys.CompletionSetFrom(completions),
	}, nil
}

// reconcile brings the touched chapter's grant marker, the assignment
// lifecycle and the journey chain in line with the current completion set.
// A journey that just completed also pays out chapters nothing ever touched.
func (a *journeyProgressAggregate) reconcile(dbc dbctx.Context, op string, st *taskWriteState, now time.Time) (domainagg.TaskProgressResult, error) {
	var out domainagg.TaskProgressResult
	asg := st.assignment
	chapter := st.lineage.Chapter
	progress := journeys.Aggregate(st.catalog, st.done)

	grant, err := a.deps.Grants.Get(dbc, asg.ID, chapter.ID)
	if err != nil {
		return out, err
	}
	plan := journeys.PlanChapterXP(chapter, progress.Chapter(chapter.ID).IsComplete, grant)
	switch plan.Action {
	case journeys.XPGrant:
		if err := a.deps.Grants.Create(dbc, &types.ChapterXPGrant{
			AssignmentID: asg.ID,
			ChapterID:    chapter.ID,
			XPAmount:     plan.Delta,
			GrantedAt:    now,
		}); err != nil {
			return out, err
		}
	case journeys.XPRevoke:
		if err := a.deps.Grants.Delete(dbc, asg.ID, chapter.ID); err != nil {
			return out, err
		}
	}

	prevStatus := asg.Status
	tr := journeys.ApplyLifecycle(asg, len(st.done) > 0, progress.IsComplete, now)
	delta := plan.Delta
	if tr.JustCompleted {
		extra, err := a.grantUntouchedChapters(dbc, st, progress, now)
		if err != nil {
			return out, err
		}
		delta += extra
	}
	var applied int
	asg.TotalXP, applied = journeys.ApplyXP(asg.TotalXP, delta)

	if delta != 0 || plan.Action != journeys.XPNone || tr.Changed() {
		asg.UpdatedAt = now
		if err := saveAssignmentState(dbc, asg, prevStatus); err != nil {
			return out, err
		}
	}

	out = domainagg.TaskProgressResult{
		Assignment:    asg,
		Progress:      progress,
		XPDelta:       applied,
		JustCompleted: tr.JustCompleted,
		Reopened:      tr.Reopened,
		AppliedAt:     now,
	}
	if tr.Started {
		a.deps.Progress.IncJourneyTransition("started")
	}

	if !tr.JustCompleted && applied <= 0 {
		return out, nil
	}
	// Chain and onboarding decide from every assignment of the user. With the
	// user lock held, of two writers on different assignments the later one
	// reads the other's committed XP and status.
	if err := a.deps.Assignments.LockUser(dbc, asg.UserID); err != nil {
		return out, err
	}
	chained, err := a.chain(dbc, asg.UserID, now)
	if err != nil {
		return out, err
	}
	out.ChainAssigned = chained
	if tr.JustCompleted {
		done, err := a.markOnboardingIfDone(dbc, asg.UserID, now)
		if err != nil {
			return out, err
		}
		out.OnboardingDone = done
	}
	return out, nil
}

// grantUntouchedChapters pays out chapters that completed without a task
// write of their own, so a completed journey has granted every chapter once.
func (a *journeyProgressAggregate) grantUntouchedChapters(dbc dbctx.Context, st *taskWriteState, progress *types.JourneyProgress, now time.Time) (int, error) {
	grants, err := a.deps.Grants.ListByAssignment(dbc, st.assignment.ID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, ch := range journeys.UngrantedChapters(st.catalog, progress, grants) {
		if err := a.deps.Grants.Create(dbc, &types.ChapterXPGrant{
			AssignmentID: st.assignment.ID,
			ChapterID:    ch.ID,
			XPAmount:     ch.XPReward,
			GrantedAt:    now,
		}); err != nil {
			return 0, err
		}
		total += ch.XPReward
	}
	return total, nil
}

// chain assigns the successor of every completed journey whose target the
// user has enough XP for. It reads all assignments of the user, so XP
// earned in any journey can open a chain that was waiting on it.
func (a *journeyProgressAggregate) chain(dbc dbctx.Context, userID uuid.UUID, now time.Time) ([]*types.JourneyAssignment, error) {
	asgs, err := a.deps.Assignments.ListByUser(dbc, userID)
	if err != nil {
		return nil, err
	}
	totalXP := 0
	assigned := make(map[uuid.UUID]bool, len(asgs))
	var completedJourneys []uuid.UUID
	for _, x := range asgs {
		totalXP += x.TotalXP
		assigned[x.JourneyID] = true
		if x.Status == types.AssignmentStatusCompleted {
			completedJourneys = append(completedJourneys, x.JourneyID)
		}
	}
	if len(completedJourneys) == 0 {
		return nil, nil
	}
	sources, err := a.deps.Journeys.GetByIDs(dbc, completedJourneys)
	if err != nil {
		return nil, err
	}
	var targetIDs []uuid.UUID
	for _, j := range sources {
		if j.NextJourneyID != nil && *j.NextJourneyID != uuid.Nil && !assigned[*j.NextJourneyID] {
			targetIDs = append(targetIDs, *j.NextJourneyID)
		}
	}
	if len(targetIDs) == 0 {
		return nil, nil
	}
	targets, err := a.deps.Journeys.GetByIDs(dbc, targetIDs)
	if err != nil {
		return nil, err
	}

	var out []*types.JourneyAssignment
	for _, target := range targets {
		if !journeys.ChainEligible(target, totalXP, assigned[target.ID]) {
			continue
		}
		row := &types.JourneyAssignment{
			UserID:     userID,
			JourneyID:  target.ID,
			Status:     types.AssignmentStatusAssigned,
			Source:     types.AssignmentSourceChain,
			AssignedAt: now,
		}
		created, err := a.deps.Assignments.CreateIfAbsent(dbc, row)
		if err != nil {
			return nil, err
		}
		assigned[target.ID] = true
		if created {
			out = append(out, row)
		}
	}
	return out, nil
}

// markOnboardingIfDone records onboarding once every auto-assign journey the
// user holds is completed. The marker is never removed.
func (a *journeyProgressAggregate) markOnboardingIfDone(dbc dbctx.Context, userID uuid.UUID, now time.Time) (bool, error) {
	asgs, err := a.deps.Assignments.ListByUser(dbc, userID)
	if err != nil {
		return false, err
	}
	ids := make([]uuid.UUID, 0, len(asgs))
	for _, x := range asgs {
		ids = append(ids, x.JourneyID)
	}
	js, err := a.deps.Journeys.GetByIDs(dbc, ids)
	if err != nil {
		return false, err
	}
	auto := make(map[uuid.UUID]bool, len(js))
	for _, j := range js {
		if j.AutoAssignOnActivation {
			auto[j.ID] = true
		}
	}
	if len(auto) == 0 {
		return false, nil
	}
	for _, x := range asgs {
		if auto[x.JourneyID] && x.Status != types.AssignmentStatusCompleted {
			return false, nil
		}
	}
	return a.deps.Onboarding.MarkCompleted(dbc, userID, now)
}

func (a *journeyProgressAggregate) observeResult(out domainagg.TaskProgressResult, err error) {
	if err != nil {
		return
	}
	a.deps.Progress.ObserveXP(out.XPDelta)
	if out.JustCompleted {
		a.deps.Progress.IncJourneyTransition("completed")
	}
	if out.Reopened {
		a.deps.Progress.IncJourneyTransition("reopened")
	}
	for range out.ChainAssigned {
		a.deps.Progress.IncJourneyTransition("chained")
	}
}

func completionResult(err error) string {
	if err == nil {
		return "accepted"
	}
	var rej *journeys.Rejection
	if errors.As(err, &rej) {
		return "rejected"
	}
	return statusOf(err)
}
