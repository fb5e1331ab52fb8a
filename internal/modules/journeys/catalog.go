package journeys

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/journeys-backend/internal/domain"
)

type CatalogRows = types.CatalogRows

// Lineage is a task with its owning quest and chapter.
type Lineage struct {
	Task         *types.Task
	Quest        *types.Quest
	Chapter      *types.Chapter
	ChapterIndex int
}

// Catalog indexes a journey's content by id. Children are kept in unlocking
// order: sort_order, then created_at, then id, so sibling order is total even
// when authors reuse a sort_order.
type Catalog struct {
	Journey  *types.Journey
	Chapters []*types.Chapter

	chapterPos map[uuid.UUID]int
	quests     map[uuid.UUID][]*types.Quest
	tasks      map[uuid.UUID][]*types.Task
	questByID  map[uuid.UUID]*types.Quest
	taskByID   map[uuid.UUID]*types.Task
}

// NewCatalog builds the index. Rows whose parent is not part of the journey
// are dropped.
func NewCatalog(rows CatalogRows) *Catalog {
	c := &Catalog{
		Journey:    rows.Journey,
		chapterPos: map[uuid.UUID]int{},
		quests:     map[uuid.UUID][]*types.Quest{},
		tasks:      map[uuid.UUID][]*types.Task{},
		questByID:  map[uuid.UUID]*types.Quest{},
		taskByID:   map[uuid.UUID]*types.Task{},
	}

	chapters := make([]*types.Chapter, 0, len(rows.Chapters))
	for _, ch := range rows.Chapters {
		if ch == nil || (rows.Journey != nil && ch.JourneyID != rows.Journey.ID) {
			continue
		}
		chapters = append(chapters, ch)
	}
	sort.SliceStable(chapters, func(i, j int) bool {
		return orderedBefore(chapters[i].SortOrder, chapters[i].CreatedAt, chapters[i].ID,
			chapters[j].SortOrder, chapters[j].CreatedAt, chapters[j].ID)
	})
	c.Chapters = chapters
	for i, ch := range chapters {
		c.chapterPos[ch.ID] = i
	}

	for _, q := range rows.Quests {
		if q == nil {
			continue
		}
		if _, ok := c.chapterPos[q.ChapterID]; !ok {
			continue
		}
		c.quests[q.ChapterID] = append(c.quests[q.ChapterID], q)
		c.questByID[q.ID] = q
	}
	for id, qs := range c.quests {
		sort.SliceStable(qs, func(i, j int) bool {
			return orderedBefore(qs[i].SortOrder, qs[i].CreatedAt, qs[i].ID, qs[j].SortOrder, qs[j].CreatedAt, qs[j].ID)
		})
		c.quests[id] = qs
	}

	for _, t := range rows.Tasks {
		if t == nil {
			continue
		}
		if _, ok := c.questByID[t.QuestID]; !ok {
			continue
		}
		c.tasks[t.QuestID] = append(c.tasks[t.QuestID], t)
		c.taskByID[t.ID] = t
	}
	for id, ts := range c.tasks {
		sort.SliceStable(ts, func(i, j int) bool {
			return orderedBefore(ts[i].SortOrder, ts[i].CreatedAt, ts[i].ID, ts[j].SortOrder, ts[j].CreatedAt, ts[j].ID)
		})
		c.tasks[id] = ts
	}
	return c
}

func orderedBefore(aSort int, aAt time.Time, aID uuid.UUID, bSort int, bAt time.Time, bID uuid.UUID) bool {
	if aSort != bSort {
		return aSort < bSort
	}
	if !aAt.Equal(bAt) {
		return aAt.Before(bAt)
	}
	return bytes.Compare(aID[:], bID[:]) < 0
}

func (c *Catalog) QuestsOf(chapterID uuid.UUID) []*types.Quest { return c.quests[chapterID] }

func (c *Catalog) TasksOf(questID uuid.UUID) []*types.Task { return c.tasks[questID] }

func (c *Catalog) Task(id uuid.UUID) (*types.Task, bool) {
	t, ok := c.taskByID[id]
	return t, ok
}

// ChapterIndex returns the position of a chapter in unlocking order, or -1.
func (c *Catalog) ChapterIndex(chapterID uuid.UUID) int {
	if i, ok := c.chapterPos[chapterID]; ok {
		return i
	}
	return -1
}

// Lineage resolves task -> quest -> chapter inside this journey.
func (c *Catalog) Lineage(taskID uuid.UUID) (Lineage, bool) {
	t, ok := c.taskByID[taskID]
	if !ok {
		return Lineage{}, false
	}
	q, ok := c.questByID[t.QuestID]
	if !ok {
		return Lineage{}, false
	}
	pos, ok := c.chapterPos[q.ChapterID]
	if !ok {
		return Lineage{}, false
	}
	return Lineage{Task: t, Quest: q, Chapter: c.Chapters[pos], ChapterIndex: pos}, true
}

// TaskIDs lists every task in the journey.
func (c *Catalog) TaskIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(c.taskByID))
	for _, ch := range c.Chapters {
		for _, q := range c.quests[ch.ID] {
			for _, t := range c.tasks[q.ID] {
				out = append(out, t.ID)
			}
		}
	}
	return out
}
