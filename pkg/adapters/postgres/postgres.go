// Package postgres is the PostgreSQL adapter: ad-hoc query execution
// plus a table-catalog crawler for the metadata pipeline.
package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"
)

// System is the system type this adapter serves
const System connector.SystemType = "postgres"

// TaskExecuteQuery runs one SQL statement and returns a table
const TaskExecuteQuery task.Type = "execute_query"

// catalogPageSize bounds one page of the table-catalog crawl
const catalogPageSize = 500

// Client wraps a single pgx connection
type Client struct {
	conn *pgx.Conn
}

// Close releases the underlying connection
func (c *Client) Close() error {
	return c.conn.Close(context.Background())
}

// NewClient connects to PostgreSQL using resolved parameters
func NewClient(ctx context.Context, params credentials.Params) (interface{}, error) {
	host, err := params.Require("host")
	if err != nil {
		return nil, err
	}
	database, err := params.Require("database")
	if err != nil {
		return nil, err
	}

	port := params.Get("port")
	if port == "" {
		port = "5432"
	}
	sslMode := params.Get("sslmode")
	if sslMode == "" {
		sslMode = "prefer"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		params.Get("user"), params.Get("password"), host, port, database, sslMode)

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres")
	}
	return &Client{conn: conn}, nil
}

// executeQuery runs the payload's SQL and collects typed rows
func executeQuery(ctx context.Context, client interface{}, _ task.TimeRange, p *task.Payload) (*task.Raw, error) {
	c, ok := client.(*Client)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, "postgres handler received wrong client type")
	}
	if p.Query == nil || p.Query.Query == "" {
		return nil, errors.New(errors.ErrorTypeData, "query text is required")
	}

	rows, err := c.conn.Query(ctx, p.Query.Query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "query failed")
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	columns := make([]string, len(descs))
	for i, d := range descs {
		columns[i] = d.Name
	}

	var collected [][]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read row")
		}
		collected = append(collected, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "row iteration failed")
	}

	return &task.Raw{Table: &task.RawTable{
		RawQuery: p.Query.Query,
		Columns:  columns,
		Rows:     collected,
		Total:    int64(len(collected)),
		Limit:    p.Query.Limit,
		Offset:   p.Query.Offset,
	}}, nil
}

// tableLister crawls the table catalog through information_schema,
// paginated with an offset cursor.
type tableLister struct {
	client *Client
}

// tableEntry is one listed catalog table
type tableEntry struct {
	schema    string
	name      string
	tableType string
}

func (l *tableLister) Category() string { return "table" }

func (l *tableLister) ListPage(ctx context.Context, cursor metasync.Cursor) ([]interface{}, metasync.Cursor, error) {
	offset := 0
	if cursor != metasync.CursorStart {
		parsed, err := strconv.Atoi(string(cursor))
		if err != nil {
			return nil, "", errors.Wrap(err, errors.ErrorTypeData, "bad catalog cursor")
		}
		offset = parsed
	}

	rows, err := l.client.conn.Query(ctx,
		`SELECT table_schema, table_name, table_type
		   FROM information_schema.tables
		  WHERE table_schema NOT IN ('pg_catalog', 'information_schema')
		  ORDER BY table_schema, table_name
		  LIMIT $1 OFFSET $2`, catalogPageSize, offset)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var items []interface{}
	for rows.Next() {
		var e tableEntry
		if err := rows.Scan(&e.schema, &e.name, &e.tableType); err != nil {
			return nil, "", err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	if len(items) < catalogPageSize {
		return items, "", nil
	}
	return items, metasync.Cursor(strconv.Itoa(offset + catalogPageSize)), nil
}

func (l *tableLister) Extract(item interface{}) (string, map[string]interface{}, error) {
	e, ok := item.(tableEntry)
	if !ok {
		return "", nil, errors.New(errors.ErrorTypeData, "unexpected catalog item type")
	}
	uid := e.schema + "." + e.name
	return uid, map[string]interface{}{
		"schema": e.schema,
		"name":   e.name,
		"type":   e.tableType,
	}, nil
}
