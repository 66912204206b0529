package metasync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/errors"
)

// fakeLister pages through a fixed cursor chain
type fakeLister struct {
	category string
	pages    map[Cursor]fakePage
	calls    []Cursor

	extractFail  map[string]bool
	extractNoUID map[string]bool
}

type fakePage struct {
	items []interface{}
	next  Cursor
}

func (l *fakeLister) Category() string { return l.category }

func (l *fakeLister) ListPage(_ context.Context, cursor Cursor) ([]interface{}, Cursor, error) {
	l.calls = append(l.calls, cursor)
	page, ok := l.pages[cursor]
	if !ok {
		return nil, "", fmt.Errorf("unknown cursor %q", cursor)
	}
	return page.items, page.next, nil
}

func (l *fakeLister) Extract(item interface{}) (string, map[string]interface{}, error) {
	name, ok := item.(string)
	if !ok {
		return "", nil, fmt.Errorf("unexpected item %v", item)
	}
	if l.extractFail[name] {
		return "", nil, fmt.Errorf("broken entity %s", name)
	}
	if l.extractNoUID[name] {
		return "", map[string]interface{}{"name": name}, nil
	}
	return name, map[string]interface{}{"name": name}, nil
}

func TestCrawl_FollowsCursorChain(t *testing.T) {
	lister := &fakeLister{
		category: "repository",
		pages: map[Cursor]fakePage{
			CursorStart: {items: []interface{}{"a", "b"}, next: "c1"},
			"c1":        {items: []interface{}{"c"}, next: "c2"},
			"c2":        {items: []interface{}{"d"}, next: ""},
		},
	}

	entities, err := Crawl(context.Background(), "test", lister)
	require.NoError(t, err)

	assert.Equal(t, []Cursor{CursorStart, "c1", "c2"}, lister.calls)
	assert.Len(t, entities, 4)
	assert.Equal(t, Attributes{"name": "a"}, entities["a"])
}

func TestCrawl_TerminatesOnStartSentinel(t *testing.T) {
	// A provider echoing the start sentinel must not loop forever.
	lister := &fakeLister{
		category: "repository",
		pages: map[Cursor]fakePage{
			CursorStart: {items: []interface{}{"a"}, next: CursorStart},
		},
	}

	entities, err := Crawl(context.Background(), "test", lister)
	require.NoError(t, err)
	assert.Equal(t, []Cursor{CursorStart}, lister.calls)
	assert.Len(t, entities, 1)
}

func TestCrawl_SkipsFailedEntities(t *testing.T) {
	lister := &fakeLister{
		category:    "repository",
		pages:       map[Cursor]fakePage{CursorStart: {items: []interface{}{"good", "bad", "also-good"}}},
		extractFail: map[string]bool{"bad": true},
	}

	entities, err := Crawl(context.Background(), "test", lister)
	require.NoError(t, err)
	assert.Len(t, entities, 2)
	assert.Contains(t, entities, "good")
	assert.Contains(t, entities, "also-good")
	assert.NotContains(t, entities, "bad")
}

func TestCrawl_SkipsEntitiesWithoutUID(t *testing.T) {
	// An entity extracted without error but without a uid is skipped,
	// not accumulated under the empty key.
	lister := &fakeLister{
		category:     "repository",
		pages:        map[Cursor]fakePage{CursorStart: {items: []interface{}{"good", "anon"}}},
		extractNoUID: map[string]bool{"anon": true},
	}

	entities, err := Crawl(context.Background(), "test", lister)
	require.NoError(t, err)
	assert.Len(t, entities, 1)
	assert.Contains(t, entities, "good")
	assert.NotContains(t, entities, "")
}

func TestCrawl_PageErrorAborts(t *testing.T) {
	lister := &fakeLister{
		category: "repository",
		pages: map[Cursor]fakePage{
			CursorStart: {items: []interface{}{"a"}, next: "gone"},
		},
	}

	_, err := Crawl(context.Background(), "test", lister)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestCrawl_SerializesAttributeValues(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	lister := &staticLister{
		category: "table",
		items:    []interface{}{"t1"},
		attrs: map[string]interface{}{
			"name":    "t1",
			"rows":    int64(42),
			"updated": ts,
			"active":  true,
			"note":    nil,
		},
	}

	entities, err := Crawl(context.Background(), "test", lister)
	require.NoError(t, err)

	attrs := entities["t1"]
	assert.Equal(t, "42", attrs["rows"])
	assert.Equal(t, "2024-05-01T12:30:00Z", attrs["updated"])
	assert.Equal(t, "true", attrs["active"])
	assert.Equal(t, "", attrs["note"])
}

// staticLister serves one page and fixed attributes for every item
type staticLister struct {
	category string
	items    []interface{}
	attrs    map[string]interface{}
}

func (l *staticLister) Category() string { return l.category }

func (l *staticLister) ListPage(_ context.Context, _ Cursor) ([]interface{}, Cursor, error) {
	return l.items, "", nil
}

func (l *staticLister) Extract(item interface{}) (string, map[string]interface{}, error) {
	return item.(string), l.attrs, nil
}

// capturingPublisher records chunks and optionally fails after n calls
type capturingPublisher struct {
	mu        sync.Mutex
	chunks    []*Chunk
	failAfter int // fail when len(chunks) reaches this; 0 disables
}

func (p *capturingPublisher) Publish(_ context.Context, chunk *Chunk) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAfter > 0 && len(p.chunks) >= p.failAfter {
		return fmt.Errorf("registry unavailable")
	}
	p.chunks = append(p.chunks, chunk)
	return nil
}

func makeEntities(n int) map[string]Attributes {
	entities := make(map[string]Attributes, n)
	for i := 0; i < n; i++ {
		uid := fmt.Sprintf("entity-%04d", i)
		entities[uid] = Attributes{"name": uid}
	}
	return entities
}

func TestPublishBatches_ChunkSizes(t *testing.T) {
	pub := &capturingPublisher{}
	entities := makeEntities(250)

	err := PublishBatches(context.Background(), pub, "conn", "repository", "run-1", entities)
	require.NoError(t, err)

	require.Len(t, pub.chunks, 3)
	assert.Len(t, pub.chunks[0].Entities, 100)
	assert.Len(t, pub.chunks[1].Entities, 100)
	assert.Len(t, pub.chunks[2].Entities, 50)

	assert.True(t, pub.chunks[0].HasMore)
	assert.True(t, pub.chunks[1].HasMore)
	assert.False(t, pub.chunks[2].HasMore)

	for _, chunk := range pub.chunks {
		assert.Equal(t, "run-1", chunk.RefreshID)
		assert.Equal(t, "conn", chunk.Connector)
		assert.Equal(t, "repository", chunk.Category)
	}
}

func TestPublishBatches_ExactMultiple(t *testing.T) {
	pub := &capturingPublisher{}

	err := PublishBatches(context.Background(), pub, "conn", "repository", "run-1", makeEntities(200))
	require.NoError(t, err)

	require.Len(t, pub.chunks, 2)
	assert.True(t, pub.chunks[0].HasMore)
	assert.False(t, pub.chunks[1].HasMore)
}

func TestPublishBatches_SingleShortChunk(t *testing.T) {
	pub := &capturingPublisher{}

	err := PublishBatches(context.Background(), pub, "conn", "repository", "run-1", makeEntities(7))
	require.NoError(t, err)

	require.Len(t, pub.chunks, 1)
	assert.Len(t, pub.chunks[0].Entities, 7)
	assert.False(t, pub.chunks[0].HasMore)
}

func TestPublishBatches_EmptyPublishesNothing(t *testing.T) {
	pub := &capturingPublisher{}

	err := PublishBatches(context.Background(), pub, "conn", "repository", "run-1", nil)
	require.NoError(t, err)
	assert.Empty(t, pub.chunks)
}

func TestPublishBatches_AbortsOnPublishError(t *testing.T) {
	pub := &capturingPublisher{failAfter: 1}

	err := PublishBatches(context.Background(), pub, "conn", "repository", "run-1", makeEntities(250))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypePublish))
	assert.Len(t, pub.chunks, 1)
}

func TestNewRefreshRun_UniqueIDs(t *testing.T) {
	a := NewRefreshRun()
	b := NewRefreshRun()
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestPipeline_SyncCategoriesIndependently(t *testing.T) {
	pub := &capturingPublisher{}
	pipeline := NewPipeline(pub)

	conn := &connector.Connector{Name: "conn", System: "test"}
	listers := []Lister{
		&staticLister{category: "table", items: []interface{}{"t1", "t2"}, attrs: map[string]interface{}{"x": "y"}},
		&staticLister{category: "view", items: []interface{}{"v1"}, attrs: map[string]interface{}{"x": "y"}},
	}

	err := pipeline.Sync(context.Background(), conn, listers)
	require.NoError(t, err)

	require.Len(t, pub.chunks, 2)

	byCategory := make(map[string]*Chunk)
	for _, chunk := range pub.chunks {
		byCategory[chunk.Category] = chunk
	}
	require.Contains(t, byCategory, "table")
	require.Contains(t, byCategory, "view")
	assert.Len(t, byCategory["table"].Entities, 2)
	assert.Len(t, byCategory["view"].Entities, 1)

	// Each category runs under its own refresh id.
	assert.NotEqual(t, byCategory["table"].RefreshID, byCategory["view"].RefreshID)
}

func TestPipeline_ReportsCategoryFailure(t *testing.T) {
	pub := &capturingPublisher{}
	pipeline := NewPipeline(pub)

	conn := &connector.Connector{Name: "conn", System: "test"}
	listers := []Lister{
		&staticLister{category: "table", items: []interface{}{"t1"}, attrs: map[string]interface{}{"x": "y"}},
		&failingLister{category: "view"},
	}

	err := pipeline.Sync(context.Background(), conn, listers)
	require.Error(t, err)

	// The healthy category still published.
	require.Len(t, pub.chunks, 1)
	assert.Equal(t, "table", pub.chunks[0].Category)
}

type failingLister struct {
	category string
}

func (l *failingLister) Category() string { return l.category }

func (l *failingLister) ListPage(_ context.Context, _ Cursor) ([]interface{}, Cursor, error) {
	return nil, "", fmt.Errorf("listing failed")
}

func (l *failingLister) Extract(_ interface{}) (string, map[string]interface{}, error) {
	return "", nil, fmt.Errorf("unreachable")
}
