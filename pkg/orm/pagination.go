package orm

import "gorm.io/gorm"

// MaxPageSize 单页上限
const MaxPageSize = 500

// ApplyPagination page 从 1 开始；page 或 limit <= 0 时不分页，limit 超过上限按上限算
func ApplyPagination(db *gorm.DB, page, limit int) *gorm.DB {
	if page <= 0 || limit <= 0 {
		return db
	}
	limit = min(limit, MaxPageSize)
	return db.Offset((page - 1) * limit).Limit(limit)
}
