package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsert inserts value, or on a unique-key conflict over keys overwrites the listed columns.
// Rendered as ON DUPLICATE KEY UPDATE on MySQL and ON CONFLICT ... DO UPDATE elsewhere.
func upsert(tx *gorm.DB, value interface{}, keys []string, updateColumns ...string) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   toColumns(keys),
		DoUpdates: clause.AssignmentColumns(updateColumns),
	}).Create(value)
}

// insertIgnore inserts value unless a row with the same keys exists.
// RowsAffected is 1 when a row was inserted and 0 when it already existed.
func insertIgnore(tx *gorm.DB, value interface{}, keys ...string) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   toColumns(keys),
		DoNothing: true,
	}).Create(value)
}

func toColumns(names []string) []clause.Column {
	cols := make([]clause.Column, 0, len(names))
	for _, n := range names {
		cols = append(cols, clause.Column{Name: n})
	}
	return cols
}
