package database

import (
	"time"

	"gorm.io/gorm"
)

// AlertRepository handles alert log database operations
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create adds a new alert record
func (r *AlertRepository) Create(alert *AlertRecord) error {
	return r.db.Create(alert).Error
}

// GetRecent retrieves the most recent N alerts
func (r *AlertRepository) GetRecent(limit int) ([]AlertRecord, error) {
	var alerts []AlertRecord
	err := r.db.Order("raised_at DESC").Order("id DESC").Limit(limit).Find(&alerts).Error
	return alerts, err
}

// GetByKind retrieves the most recent alerts of one kind
func (r *AlertRepository) GetByKind(kind string, limit int) ([]AlertRecord, error) {
	var alerts []AlertRecord
	err := r.db.Where("kind = ?", kind).
		Order("raised_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

// DeleteOlderThan deletes alerts raised before the given time
func (r *AlertRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("raised_at < ?", before).Delete(&AlertRecord{})
	return result.RowsAffected, result.Error
}
