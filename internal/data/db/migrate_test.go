package db

import (
	"testing"

	types "github.com/yungbote/journeys-backend/internal/domain"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

func TestSQLiteService_AutoMigrateAll(t *testing.T) {
	svc, err := NewSQLiteService(logger.NewNop(), "file:migrate_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Running twice must be a no-op.
	if err := svc.AutoMigrateAll(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	for _, model := range []any{&types.Journey{}, &types.Chapter{}, &types.Quest{}, &types.Task{}, &types.JourneyAssignment{}, &types.TaskCompletion{}, &types.ChapterXPGrant{}, &types.UserOnboarding{}} {
		if !svc.DB().Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
	if !svc.DB().Migrator().HasIndex(&types.Chapter{}, "idx_journey_chapter_order") {
		t.Fatalf("expected idx_journey_chapter_order")
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5433", User: "u", Password: "p", Name: "n"}
	want := "postgres://u:p@db:5433/n?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Fatalf("expected %q got %q", want, got)
	}
}
