package postgres

import (
	"fmt"

	"gorm.io/gorm"
)

var allowedSortColumns = map[string]bool{
	"created_at":     true,
	"title":          true,
	"due_date":       true,
	"started_at":     true,
	"submitted_at":   true,
	"score":          true,
	"attempt_number": true,
}

// ApplyPaginationAndSort applies common list query options. Unknown sort
// columns fall back to created_at to keep ORDER BY injection-safe.
func ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	if !allowedSortColumns[sortBy] {
		sortBy = "created_at"
	}
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}
