// Package metasync implements the metadata-crawling pipeline: cursor
// paginated crawls over external-system catalogs, accumulation of
// uid→attributes maps per entity category, and batched idempotent
// publication to the central registry.
package metasync

import (
	"context"
	"fmt"
	"time"

	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/logger"
	"github.com/opsmux/opsmux/pkg/metrics"
	"github.com/opsmux/opsmux/pkg/task"
	"go.uber.org/zap"
)

// Cursor is an opaque pagination token returned by a provider listing
// API.
type Cursor string

// CursorStart is the initial sentinel passed to the first ListPage
// call. It is distinct from the empty cursor, which means "no more
// pages".
const CursorStart Cursor = "\x00start"

// Attributes is the serialized attribute map of one entity
type Attributes map[string]string

// Lister is the provider pagination contract one crawl routine drives.
// ListPage is called with CursorStart first and then with each returned
// cursor until it returns the empty cursor. Extract applies the
// category-specific uid rule to one listed item.
type Lister interface {
	// Category names the entity category this lister crawls
	// (e.g. "repository", "topic", "table")
	Category() string

	// ListPage fetches one page of raw items. An empty next cursor
	// terminates the crawl.
	ListPage(ctx context.Context, cursor Cursor) (items []interface{}, next Cursor, err error)

	// Extract derives the entity uid and its attributes from one item.
	// The uid must be a stable identity (name, login, guid), never an
	// array index.
	Extract(item interface{}) (uid string, attrs map[string]interface{}, err error)
}

// Crawl paginates through a category's full catalog and returns the
// accumulated uid→attributes map. Pages are fetched strictly
// sequentially; per-entity extraction failures are logged and skipped
// so one bad entity never aborts the pass. Attribute values are
// serialized to text, timestamps in a fixed RFC 3339 form.
func Crawl(ctx context.Context, system string, l Lister) (map[string]Attributes, error) {
	log := logger.Get().With(
		zap.String("component", "metasync"),
		zap.String("system", system),
		zap.String("category", l.Category()))

	accumulated := make(map[string]Attributes)
	cursor := CursorStart

	for {
		items, next, err := l.ListPage(ctx, cursor)
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeData,
				"listing %s page failed", l.Category())
		}
		metrics.CrawlPages.WithLabelValues(system, l.Category()).Inc()

		for _, item := range items {
			uid, attrs, err := l.Extract(item)
			if err != nil {
				metrics.CrawlEntityFailures.WithLabelValues(system, l.Category()).Inc()
				log.Warn("skipping entity", zap.Error(err))
				continue
			}
			if uid == "" {
				metrics.CrawlEntityFailures.WithLabelValues(system, l.Category()).Inc()
				log.Warn("skipping entity", zap.String("reason", "empty uid"))
				continue
			}
			accumulated[uid] = serializeAttributes(attrs)
			metrics.CrawlEntities.WithLabelValues(system, l.Category()).Inc()
		}

		if next == "" || next == CursorStart {
			break
		}
		cursor = next
	}

	log.Info("crawl pass complete", zap.Int("entities", len(accumulated)))
	return accumulated, nil
}

// serializeAttributes renders attribute values as text. Timestamps use
// the same fixed representation as normalized task results.
func serializeAttributes(attrs map[string]interface{}) Attributes {
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = serializeValue(v)
	}
	return out
}

func serializeValue(v interface{}) string {
	switch x := v.(type) {
	case time.Time, *time.Time:
		return task.Stringify(x)
	case string:
		return x
	case nil:
		return ""
	default:
		if s := task.Stringify(x); s != "" {
			return s
		}
		return fmt.Sprintf("%v", x)
	}
}
