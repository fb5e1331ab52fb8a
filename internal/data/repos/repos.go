package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/journeys-backend/internal/data/repos/journeys"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

type JourneyRepo = journeys.JourneyRepo
type ChapterRepo = journeys.ChapterRepo
type QuestRepo = journeys.QuestRepo
type TaskRepo = journeys.TaskRepo
type CatalogStore = journeys.CatalogStore

type JourneyAssignmentRepo = journeys.JourneyAssignmentRepo
type TaskCompletionRepo = journeys.TaskCompletionRepo
type ChapterXPGrantRepo = journeys.ChapterXPGrantRepo
type UserOnboardingRepo = journeys.UserOnboardingRepo

func NewJourneyRepo(db *gorm.DB, baseLog *logger.Logger) JourneyRepo {
	return journeys.NewJourneyRepo(db, baseLog)
}
func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return journeys.NewChapterRepo(db, baseLog)
}
func NewQuestRepo(db *gorm.DB, baseLog *logger.Logger) QuestRepo {
	return journeys.NewQuestRepo(db, baseLog)
}
func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return journeys.NewTaskRepo(db, baseLog)
}
func NewCatalogStore(db *gorm.DB, baseLog *logger.Logger) CatalogStore {
	return journeys.NewCatalogStore(db, baseLog)
}

func NewJourneyAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) JourneyAssignmentRepo {
	return journeys.NewJourneyAssignmentRepo(db, baseLog)
}
func NewTaskCompletionRepo(db *gorm.DB, baseLog *logger.Logger) TaskCompletionRepo {
	return journeys.NewTaskCompletionRepo(db, baseLog)
}
func NewChapterXPGrantRepo(db *gorm.DB, baseLog *logger.Logger) ChapterXPGrantRepo {
	return journeys.NewChapterXPGrantRepo(db, baseLog)
}
func NewUserOnboardingRepo(db *gorm.DB, baseLog *logger.Logger) UserOnboardingRepo {
	return journeys.NewUserOnboardingRepo(db, baseLog)
}
