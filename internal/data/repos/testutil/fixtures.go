package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/journeys-backend/internal/domain"
)

type TaskFixture struct {
	Mandatory bool
	Type      string
	Config    string
}

type ChapterFixture struct {
	XPReward  int
	Mandatory bool
	Tasks     []TaskFixture
}

type JourneyFixture struct {
	Slug       string
	Active     bool
	AutoAssign bool
	RequiredXP int
	Next       *uuid.UUID
	Chapters   []ChapterFixture
}

// SeededJourney exposes ids in catalog order: Tasks[i] are the tasks of
// Chapters[i], all under a single quest.
type SeededJourney struct {
	Journey  *types.Journey
	Chapters []*types.Chapter
	Quests   []*types.Quest
	Tasks    [][]*types.Task
}

// MandatoryChapter is the common one-task chapter.
func MandatoryChapter(xp int) ChapterFixture {
	return ChapterFixture{XPReward: xp, Mandatory: true, Tasks: []TaskFixture{{Mandatory: true, Type: "checkbox"}}}
}

func SeedJourney(tb testing.TB, ctx context.Context, tx *gorm.DB, f JourneyFixture) *SeededJourney {
	tb.Helper()
	slug := f.Slug
	if slug == "" {
		slug = "journey-" + uuid.NewString()[:8]
	}
	base := time.Now().UTC().Truncate(time.Second)
	j := &types.Journey{
		ID:                     uuid.New(),
		Slug:                   slug,
		Title:                  slug,
		IsActive:               f.Active,
		AutoAssignOnActivation: f.AutoAssign,
		RequiredXP:             f.RequiredXP,
		NextJourneyID:          f.Next,
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed journey: %v", err)
	}
	out := &SeededJourney{Journey: j}
	for i, cf := range f.Chapters {
		ch := &types.Chapter{
			ID:          uuid.New(),
			JourneyID:   j.ID,
			Slug:        fmt.Sprintf("chapter-%d", i),
			Title:       fmt.Sprintf("Chapter %d", i+1),
			SortOrder:   i,
			IsMandatory: cf.Mandatory,
			XPReward:    cf.XPReward,
			CreatedAt:   base,
		}
		if err := tx.WithContext(ctx).Create(ch).Error; err != nil {
			tb.Fatalf("seed chapter: %v", err)
		}
		q := &types.Quest{
			ID:          uuid.New(),
			ChapterID:   ch.ID,
			Slug:        "quest",
			Title:       "Quest",
			IsMandatory: true,
			CreatedAt:   base,
		}
		if err := tx.WithContext(ctx).Create(q).Error; err != nil {
			tb.Fatalf("seed quest: %v", err)
		}
		var tasks []*types.Task
		for k, tf := range cf.Tasks {
			vt := tf.Type
			if vt == "" {
				vt = "checkbox"
			}
			cfg := tf.Config
			if cfg == "" {
				cfg = "{}"
			}
			t := &types.Task{
				ID:               uuid.New(),
				QuestID:          q.ID,
				Slug:             fmt.Sprintf("task-%d", k),
				Title:            fmt.Sprintf("Task %d", k+1),
				SortOrder:        k,
				IsMandatory:      tf.Mandatory,
				ValidationType:   vt,
				ValidationConfig: datatypes.JSON([]byte(cfg)),
				CreatedAt:        base,
			}
			if err := tx.WithContext(ctx).Create(t).Error; err != nil {
				tb.Fatalf("seed task: %v", err)
			}
			tasks = append(tasks, t)
		}
		out.Chapters = append(out.Chapters, ch)
		out.Quests = append(out.Quests, q)
		out.Tasks = append(out.Tasks, tasks)
	}
	return out
}

func SeedAssignment(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, journeyID uuid.UUID) *types.JourneyAssignment {
	tb.Helper()
	a := &types.JourneyAssignment{
		ID:        uuid.New(),
		UserID:    userID,
		JourneyID: journeyID,
		Status:    types.AssignmentStatusAssigned,
		Source:    types.AssignmentSourceManual,
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed assignment: %v", err)
	}
	return a
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
