package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/journeys-backend/internal/domain"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// =========================
		// Catalog
		// =========================
		&types.Journey{},
		&types.Chapter{},
		&types.Quest{},
		&types.Task{},

		// =========================
		// Ledger + completion log
		// =========================
		&types.JourneyAssignment{},
		&types.TaskCompletion{},
		&types.ChapterXPGrant{},
		&types.UserOnboarding{},
	)
}

// EnsureJourneyIndexes adds the ordering indexes the catalog loader and the
// per-user listings scan. The statements are valid on Postgres and SQLite.
func EnsureJourneyIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"idx_journey_chapter_order", `CREATE INDEX IF NOT EXISTS idx_journey_chapter_order ON journey_chapter (journey_id, sort_order, created_at, id);`},
		{"idx_journey_quest_order", `CREATE INDEX IF NOT EXISTS idx_journey_quest_order ON journey_quest (chapter_id, sort_order, created_at, id);`},
		{"idx_journey_task_order", `CREATE INDEX IF NOT EXISTS idx_journey_task_order ON journey_task (quest_id, sort_order, created_at, id);`},
		{"idx_journey_assignment_user_status", `CREATE INDEX IF NOT EXISTS idx_journey_assignment_user_status ON journey_assignment (user_id, status);`},
		{"idx_journey_active_auto", `CREATE INDEX IF NOT EXISTS idx_journey_active_auto ON journey (is_active, auto_assign_on_activation, sort_order);`},
	}
	for _, st := range stmts {
		if err := db.Exec(st.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", st.name, err)
		}
	}
	return nil
}

func migrateWithLog(db *gorm.DB, log *logger.Logger) error {
	log.Info("Auto migrating tables...")
	if err := AutoMigrateAll(db); err != nil {
		log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureJourneyIndexes(db); err != nil {
		log.Error("Journey index migration failed", "error", err)
		return err
	}
	return nil
}
