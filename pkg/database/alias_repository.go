package database

import (
	"strings"

	"gorm.io/gorm"
)

// AliasRepository handles radio alias database operations. It satisfies
// the session's alias resolver.
type AliasRepository struct {
	db *gorm.DB
}

// NewAliasRepository creates a new alias repository
func NewAliasRepository(db *gorm.DB) *AliasRepository {
	return &AliasRepository{db: db}
}

// Upsert creates or updates an alias
func (r *AliasRepository) Upsert(a *Alias) error {
	return r.db.Save(a).Error
}

// UpsertBatch upserts many aliases in one transaction
func (r *AliasRepository) UpsertBatch(aliases []Alias, batchSize int) error {
	if len(aliases) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(aliases)
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < len(aliases); i += batchSize {
			end := i + batchSize
			if end > len(aliases) {
				end = len(aliases)
			}
			batch := aliases[i:end]
			if err := tx.Save(&batch).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves the alias for a radio ID
func (r *AliasRepository) Get(rid string) (*Alias, error) {
	var a Alias
	err := r.db.Where("rid = ?", rid).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Resolve returns the alias for rid. Lookup errors read as a miss.
func (r *AliasRepository) Resolve(rid string) (string, bool) {
	a, err := r.Get(rid)
	if err != nil {
		return "", false
	}
	name := strings.TrimSpace(a.Alias)
	return name, name != ""
}

// Count returns the number of stored aliases
func (r *AliasRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Alias{}).Count(&count).Error
	return count, err
}

// DeleteAll removes every alias
func (r *AliasRepository) DeleteAll() error {
	return r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Alias{}).Error
}
