package sqlite

import (
	"errors"
	"strings"

	"github.com/atvirokodosprendimai/dppportal/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/dppportal/internal/core/domain"
	"gorm.io/gorm"
)

// newestFirst matches the in-memory store, which prepends on create.
const newestFirst = "created_at DESC, rowid DESC"

// compareAndSwap applies values to the row with the given id only when its
// stored version equals version, bumping the version by one.
func compareAndSwap(tx *gormsqlite.Tx, model any, id string, version int64, values map[string]any) error {
	values["version"] = gorm.Expr("version + 1")
	res := tx.Model(model).Where("id = ? AND version = ?", id, version).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrVersionConflict
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
