package database

import (
	"time"

	"gorm.io/gorm"
)

// CallRepository handles call history database operations
type CallRepository struct {
	db *gorm.DB
}

// NewCallRepository creates a new call repository
func NewCallRepository(db *gorm.DB) *CallRepository {
	return &CallRepository{db: db}
}

// Create adds a new call record
func (r *CallRepository) Create(call *CallRecord) error {
	return r.db.Create(call).Error
}

// GetRecent retrieves the most recent N calls
func (r *CallRepository) GetRecent(limit int) ([]CallRecord, error) {
	var calls []CallRecord
	err := r.db.Order("start_time DESC").Limit(limit).Find(&calls).Error
	return calls, err
}

// GetRecentPaginated retrieves calls with pagination
func (r *CallRepository) GetRecentPaginated(page, perPage int) ([]CallRecord, int64, error) {
	var calls []CallRecord
	var total int64

	if err := r.db.Model(&CallRecord{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	offset := (page - 1) * perPage
	err := r.db.Order("start_time DESC").
		Offset(offset).
		Limit(perPage).
		Find(&calls).Error

	return calls, total, err
}

// GetBySource retrieves calls keyed by a specific radio
func (r *CallRepository) GetBySource(rid string, limit int) ([]CallRecord, error) {
	var calls []CallRecord
	err := r.db.Where("src_id = ?", rid).
		Order("start_time DESC").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}

// GetByTalkgroup retrieves calls for a specific talkgroup
func (r *CallRepository) GetByTalkgroup(tgid string, limit int) ([]CallRecord, error) {
	var calls []CallRecord
	err := r.db.Where("dst_id = ?", tgid).
		Order("start_time DESC").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}

// GetByTimeRange retrieves calls that started within a time range
func (r *CallRepository) GetByTimeRange(start, end time.Time, limit int) ([]CallRecord, error) {
	var calls []CallRecord
	err := r.db.Where("start_time BETWEEN ? AND ?", start, end).
		Order("start_time DESC").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}

// DeleteOlderThan deletes calls that started before the given time
func (r *CallRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result := r.db.Where("start_time < ?", before).Delete(&CallRecord{})
	return result.RowsAffected, result.Error
}
