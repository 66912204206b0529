// Package bigquery is the Google BigQuery adapter: ad-hoc query
// execution plus a dataset-table crawler.
package bigquery

import (
	"context"

	bq "cloud.google.com/go/bigquery"
	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/task"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// System is the system type this adapter serves
const System connector.SystemType = "bigquery"

// TaskExecuteQuery runs one SQL statement and returns a table
const TaskExecuteQuery task.Type = "execute_query"

// Client wraps the BigQuery API client
type Client struct {
	api *bq.Client
}

// Close releases the underlying client
func (c *Client) Close() error {
	return c.api.Close()
}

// NewClient builds a BigQuery client from resolved parameters
func NewClient(ctx context.Context, params credentials.Params) (interface{}, error) {
	project, err := params.Require("project")
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if creds := params.Get("credentials_json"); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	}

	api, err := bq.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create bigquery client")
	}
	return &Client{api: api}, nil
}

func executeQuery(ctx context.Context, client interface{}, _ task.TimeRange, p *task.Payload) (*task.Raw, error) {
	c, ok := client.(*Client)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, "bigquery handler received wrong client type")
	}
	if p.Query == nil || p.Query.Query == "" {
		return nil, errors.New(errors.ErrorTypeData, "query text is required")
	}

	q := c.api.Query(p.Query.Query)
	it, err := q.Read(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "query failed")
	}

	var columns []string
	var rows [][]interface{}
	for {
		var row []bq.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read row")
		}
		if columns == nil {
			for _, f := range it.Schema {
				columns = append(columns, f.Name)
			}
		}
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = v
		}
		rows = append(rows, cells)
	}

	total := int64(len(rows))
	if it.TotalRows > 0 {
		total = int64(it.TotalRows)
	}

	return &task.Raw{Table: &task.RawTable{
		RawQuery: p.Query.Query,
		Columns:  columns,
		Rows:     rows,
		Total:    total,
		Limit:    p.Query.Limit,
		Offset:   p.Query.Offset,
	}}, nil
}

// tableLister crawls tables across all datasets in the project
type tableLister struct {
	client *Client
}

type tableEntry struct {
	dataset   string
	name      string
	tableType string
}

func (l *tableLister) Category() string { return "table" }

// ListPage walks one dataset per page, using the dataset id as the
// cursor so a large project is crawled incrementally.
func (l *tableLister) ListPage(ctx context.Context, cursor metasync.Cursor) ([]interface{}, metasync.Cursor, error) {
	datasets := l.client.api.Datasets(ctx)

	// advance past datasets already crawled
	var current *bq.Dataset
	for {
		ds, err := datasets.Next()
		if err == iterator.Done {
			return nil, "", nil
		}
		if err != nil {
			return nil, "", err
		}
		if cursor == metasync.CursorStart || ds.DatasetID > string(cursor) {
			current = ds
			break
		}
	}

	var items []interface{}
	tables := current.Tables(ctx)
	for {
		t, err := tables.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", err
		}
		md, err := t.Metadata(ctx)
		if err != nil {
			return nil, "", err
		}
		items = append(items, tableEntry{
			dataset:   current.DatasetID,
			name:      t.TableID,
			tableType: string(md.Type),
		})
	}
	return items, metasync.Cursor(current.DatasetID), nil
}

func (l *tableLister) Extract(item interface{}) (string, map[string]interface{}, error) {
	e, ok := item.(tableEntry)
	if !ok {
		return "", nil, errors.New(errors.ErrorTypeData, "unexpected table item type")
	}
	return e.dataset + "." + e.name, map[string]interface{}{
		"dataset": e.dataset,
		"name":    e.name,
		"type":    e.tableType,
	}, nil
}

func init() {
	credentials.RegisterMapping(System, map[connector.KeyType]string{
		connector.KeyTypeProject:         "project",
		connector.KeyTypeCredentialsJSON: "credentials_json",
	})

	adapter.MustRegister(&adapter.Adapter{
		System: System,
		Tasks: map[task.Type]adapter.TaskSpec{
			TaskExecuteQuery: {Handler: executeQuery, Shape: task.ShapeTable},
		},
		RequiredKeySets: []connector.KeySet{
			connector.NewKeySet(connector.KeyTypeProject, connector.KeyTypeCredentialsJSON),
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
