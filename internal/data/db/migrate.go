package db

import (
	"gorm.io/gorm"

	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(types.Models()...)
}
