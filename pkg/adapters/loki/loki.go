// Package loki is the Grafana Loki adapter: log-range queries with
// query sanitation and validation, plus a label crawler.
package loki

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/clients"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/jsonx"
	"github.com/opsmux/opsmux/pkg/logger"
	"github.com/opsmux/opsmux/pkg/metasync"
	"github.com/opsmux/opsmux/pkg/sanitize"
	"github.com/opsmux/opsmux/pkg/task"
)

// System is the system type this adapter serves
const System connector.SystemType = "loki"

// TaskQueryLogs runs a LogQL range query and returns log rows
const TaskQueryLogs task.Type = "query_logs"

// defaultLogLimit bounds a query that does not request a limit
const defaultLogLimit = int64(1000)

// Client wraps the shared HTTP client with the Loki base URL and
// optional bearer token.
type Client struct {
	http    *clients.HTTPClient
	baseURL string
	token   string
}

// Close releases pooled connections
func (c *Client) Close() error {
	return c.http.Close()
}

// NewClient builds a Loki client from resolved parameters
func NewClient(_ context.Context, params credentials.Params) (interface{}, error) {
	baseURL, err := params.Require("url")
	if err != nil {
		return nil, err
	}
	return &Client{
		http:    clients.NewHTTPClient(clients.DefaultHTTPConfig(), logger.Get()),
		baseURL: baseURL,
		token:   params.Get("token"),
	}, nil
}

func (c *Client) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	return h
}

// rangeResponse mirrors the query_range reply shape we consume
type rangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// queryLogs sanitizes and validates the LogQL query, then runs it as a
// range query bounded by the task's time range.
func queryLogs(ctx context.Context, client interface{}, tr task.TimeRange, p *task.Payload) (*task.Raw, error) {
	c, ok := client.(*Client)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, "loki handler received wrong client type")
	}
	if p.Logs == nil || p.Logs.Query == "" {
		return nil, errors.New(errors.ErrorTypeData, "log query is required")
	}

	query := sanitize.Sanitize(p.Logs.Query)
	if err := sanitize.Validate(query); err != nil {
		return nil, err
	}

	limit := p.Logs.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}

	values := url.Values{}
	values.Set("query", query)
	values.Set("start", strconv.FormatInt(tr.Start().UnixNano(), 10))
	values.Set("end", strconv.FormatInt(tr.End().UnixNano(), 10))
	values.Set("limit", strconv.FormatInt(limit, 10))
	values.Set("direction", "backward")

	resp, err := c.http.Get(ctx, c.baseURL+"/loki/api/v1/query_range?"+values.Encode(), c.headers())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "loki query failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read loki response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrorTypeData, "loki returned status %d: %s", resp.StatusCode, body)
	}

	var parsed rangeResponse
	if err := jsonx.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode loki response")
	}

	var rows [][]interface{}
	for _, stream := range parsed.Data.Result {
		labels, err := jsonx.Marshal(stream.Stream)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode stream labels")
		}
		for _, entry := range stream.Values {
			rows = append(rows, []interface{}{entry[0], entry[1], string(labels)})
		}
	}

	return &task.Raw{Table: &task.RawTable{
		RawQuery: query,
		Columns:  []string{"timestamp", "line", "labels"},
		Rows:     rows,
		Total:    int64(len(rows)),
		Limit:    limit,
	}}, nil
}

// labelLister crawls label names with their values. The labels reply is
// a single list, so the crawl completes in one page.
type labelLister struct {
	client *Client
}

type labelEntry struct {
	name   string
	values []string
}

func (l *labelLister) Category() string { return "label" }

func (l *labelLister) ListPage(ctx context.Context, _ metasync.Cursor) ([]interface{}, metasync.Cursor, error) {
	names, err := l.fetchStrings(ctx, "/loki/api/v1/labels")
	if err != nil {
		return nil, "", err
	}

	items := make([]interface{}, 0, len(names))
	for _, name := range names {
		values, err := l.fetchStrings(ctx, "/loki/api/v1/label/"+url.PathEscape(name)+"/values")
		if err != nil {
			return nil, "", err
		}
		items = append(items, labelEntry{name: name, values: values})
	}
	return items, "", nil
}

func (l *labelLister) fetchStrings(ctx context.Context, path string) ([]string, error) {
	resp, err := l.client.http.Get(ctx, l.client.baseURL+path, l.client.headers())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loki returned status %d for %s", resp.StatusCode, path)
	}

	var parsed struct {
		Status string   `json:"status"`
		Data   []string `json:"data"`
	}
	if err := jsonx.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return parsed.Data, nil
}

func (l *labelLister) Extract(item interface{}) (string, map[string]interface{}, error) {
	e, ok := item.(labelEntry)
	if !ok {
		return "", nil, errors.New(errors.ErrorTypeData, "unexpected label item type")
	}
	values, err := jsonx.Marshal(e.values)
	if err != nil {
		return "", nil, err
	}
	return e.name, map[string]interface{}{
		"name":        e.name,
		"values":      string(values),
		"cardinality": len(e.values),
	}, nil
}

func init() {
	credentials.RegisterMapping(System, map[connector.KeyType]string{
		connector.KeyTypeURL:      "url",
		connector.KeyTypeAPIToken: "token",
	})

	adapter.MustRegister(&adapter.Adapter{
		System: System,
		Tasks: map[task.Type]adapter.TaskSpec{
			TaskQueryLogs: {Handler: queryLogs, Shape: task.ShapeLogs},
		},
		RequiredKeySets: []connector.KeySet{
			connector.NewKeySet(connector.KeyTypeURL),
		},
		NewClient: NewClient,
		Listers: func(client interface{}) []metasync.Lister {
			c, ok := client.(*Client)
			if !ok {
				return nil
			}
			return []metasync.Lister{&labelLister{client: c}}
		},
	})
}
