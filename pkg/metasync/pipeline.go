package metasync

import (
	"context"
	"sync"

	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/logger"
	"go.uber.org/zap"
)

// Pipeline drives crawl-and-publish passes for a connector's entity
// categories. One category's pages are always fetched sequentially;
// distinct categories run concurrently, each with its own accumulation
// map and refresh run.
type Pipeline struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewPipeline creates a pipeline publishing through pub
func NewPipeline(pub Publisher) *Pipeline {
	return &Pipeline{
		publisher: pub,
		logger:    logger.Get().With(zap.String("component", "metasync_pipeline")),
	}
}

// SyncCategory runs one full crawl-and-publish pass for a single
// category. Crawl failures abort only this category.
func (p *Pipeline) SyncCategory(ctx context.Context, conn *connector.Connector, l Lister) error {
	run := NewRefreshRun()

	entities, err := Crawl(ctx, string(conn.System), l)
	if err != nil {
		return err
	}

	return PublishBatches(ctx, p.publisher, conn.Name, l.Category(), run.ID, entities)
}

// Sync crawls every category for a connector. Categories run
// concurrently; a failed category is logged and reported without
// stopping the others. The returned error aggregates the first
// failure, if any.
func (p *Pipeline) Sync(ctx context.Context, conn *connector.Connector, listers []Lister) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, l := range listers {
		wg.Add(1)
		go func(l Lister) {
			defer wg.Done()

			if err := p.SyncCategory(ctx, conn, l); err != nil {
				p.logger.Error("category sync failed",
					zap.String("connector", conn.Name),
					zap.String("category", l.Category()),
					zap.Error(err))
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(l)
	}

	wg.Wait()

	if firstErr != nil {
		return errors.Wrapf(firstErr, errors.ErrorTypeData,
			"metadata sync for connector %s completed with failures", conn.Name)
	}
	return nil
}
