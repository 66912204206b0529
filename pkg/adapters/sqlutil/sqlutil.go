// Package sqlutil holds the query execution shared by the
// database/sql based adapters.
package sqlutil

import (
	"context"
	"database/sql"

	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/task"
)

// QueryToTable runs a query and collects every row into a native
// table. Cells keep their driver types; stringification happens at
// normalization time. Total is set from the fetched row count.
func QueryToTable(ctx context.Context, db *sql.DB, query string, limit, offset int64) (*task.RawTable, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "query failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read result columns")
	}

	var collected [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan row")
		}
		collected = append(collected, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "row iteration failed")
	}

	return &task.RawTable{
		RawQuery: query,
		Columns:  columns,
		Rows:     collected,
		Total:    int64(len(collected)),
		Limit:    limit,
		Offset:   offset,
	}, nil
}
