// Package mysql is the MySQL adapter: ad-hoc query execution over
// database/sql plus a table-catalog crawler.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/go-sql-driver/mysql"
	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/adapters/sqlutil"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"
)

// System is the system type this adapter serves
const System connector.SystemType = "mysql"

// TaskExecuteQuery runs one SQL statement and returns a table
const TaskExecuteQuery task.Type = "execute_query"

const catalogPageSize = 500

// Client wraps a database/sql pool against MySQL
type Client struct {
	db *sql.DB
}

// Close releases the connection pool
func (c *Client) Close() error {
	return c.db.Close()
}

// NewClient opens a MySQL connection pool from resolved parameters
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
		port = "3306"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		params.Get("user"), params.Get("password"), host, port, database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open mysql connection")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to mysql")
	}
	return &Client{db: db}, nil
}

func executeQuery(ctx context.Context, client interface{}, _ task.TimeRange, p *task.Payload) (*task.Raw, error) {
	c, ok := client.(*Client)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, "mysql handler received wrong client type")
	}
	if p.Query == nil || p.Query.Query == "" {
		return nil, errors.New(errors.ErrorTypeData, "query text is required")
	}

	table, err := sqlutil.QueryToTable(ctx, c.db, p.Query.Query, p.Query.Limit, p.Query.Offset)
	if err != nil {
		return nil, err
	}
	return &task.Raw{Table: table}, nil
}

// tableLister crawls the table catalog through information_schema
type tableLister struct {
	client *Client
}

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

	rows, err := l.client.db.QueryContext(ctx,
		`SELECT table_schema, table_name, table_type
		   FROM information_schema.tables
		  WHERE table_schema NOT IN ('mysql', 'sys', 'performance_schema', 'information_schema')
		  ORDER BY table_schema, table_name
		  LIMIT ? OFFSET ?`, catalogPageSize, offset)
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
	return e.schema + "." + e.name, map[string]interface{}{
		"schema": e.schema,
		"name":   e.name,
		"type":   e.tableType,
	}, nil
}

func init() {
	credentials.RegisterMapping(System, map[connector.KeyType]string{
		connector.KeyTypeHost:     "host",
		connector.KeyTypePort:     "port",
		connector.KeyTypeDatabase: "database",
		connector.KeyTypeUsername: "user",
		connector.KeyTypePassword: "password",
	})

	adapter.MustRegister(&adapter.Adapter{
		System: System,
		Tasks: map[task.Type]adapter.TaskSpec{
			TaskExecuteQuery: {Handler: executeQuery, Shape: task.ShapeTable},
		},
		RequiredKeySets: []connector.KeySet{
			connector.NewKeySet(connector.KeyTypeHost, connector.KeyTypeDatabase, connector.KeyTypeUsername, connector.KeyTypePassword),
		},
		NewClient: NewClient,
		Listers: func(client interface{}) []metasync.Lister {
			c, ok := client.(*Client)
			if !ok {
				return nil
			}
			return []metasync.Lister{&tableLister{client: c}}
		},
	})
}
