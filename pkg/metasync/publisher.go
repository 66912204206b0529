package metasync

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"

	"github.com/klauspost/compress/gzip"
	"github.com/opsmux/opsmux/pkg/clients"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/jsonx"
	"github.com/opsmux/opsmux/pkg/logger"
	"github.com/opsmux/opsmux/pkg/metrics"
	"go.uber.org/zap"
)

// MaxChunkSize is the maximum number of entities per published chunk
const MaxChunkSize = 100

// Chunk is one published batch of a refresh run
type Chunk struct {
	Connector string                `json:"connector_name"`
	Category  string                `json:"entity_category"`
	Entities  map[string]Attributes `json:"entities"`
	RefreshID string                `json:"refresh_id"`
	HasMore   bool                  `json:"has_more"`
}

// Publisher delivers chunks to the metadata registry. Implementations
// must be idempotent per (refresh_id, uid): re-publishing the same uid
// within a run replaces the previous entry.
type Publisher interface {
	Publish(ctx context.Context, chunk *Chunk) error
}

// PublishBatches splits an accumulated entity map into chunks of at
// most MaxChunkSize and publishes them under one refresh id. Every
// chunk except the last carries has_more=true. An empty map publishes
// nothing at all, not even a closing chunk; the registry treats a run
// it never saw as a no-op.
func PublishBatches(
	ctx context.Context,
	pub Publisher,
	connectorName, category, refreshID string,
	entities map[string]Attributes,
) error {
	if len(entities) == 0 {
		logger.Get().Debug("nothing to publish",
			zap.String("connector", connectorName),
			zap.String("category", category))
		return nil
	}

	// Stable order so re-runs chunk identically.
	uids := make([]string, 0, len(entities))
	for uid := range entities {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	for offset := 0; offset < len(uids); offset += MaxChunkSize {
		end := offset + MaxChunkSize
		if end > len(uids) {
			end = len(uids)
		}

		batch := make(map[string]Attributes, end-offset)
		for _, uid := range uids[offset:end] {
			batch[uid] = entities[uid]
		}

		chunk := &Chunk{
			Connector: connectorName,
			Category:  category,
			Entities:  batch,
			RefreshID: refreshID,
			HasMore:   end < len(uids),
		}

		if err := pub.Publish(ctx, chunk); err != nil {
			metrics.PublishChunks.WithLabelValues(category, "error").Inc()
			return errors.Wrapf(err, errors.ErrorTypePublish,
				"publishing %s chunk for connector %s failed", category, connectorName)
		}
		metrics.PublishChunks.WithLabelValues(category, "success").Inc()
		metrics.PublishChunkSize.WithLabelValues(category).Observe(float64(len(batch)))
	}

	return nil
}

// RegistryPublisher publishes chunks to the central metadata registry
// over HTTP with gzip-compressed JSON bodies.
type RegistryPublisher struct {
	client   *clients.HTTPClient
	endpoint string
	token    string
	logger   *zap.Logger
}

// NewRegistryPublisher creates a publisher for the given registry
// endpoint. The token, when non-empty, is sent as a bearer credential.
func NewRegistryPublisher(client *clients.HTTPClient, endpoint, token string) *RegistryPublisher {
	return &RegistryPublisher{
		client:   client,
		endpoint: endpoint,
		token:    token,
		logger:   logger.Get().With(zap.String("component", "registry_publisher")),
	}
}

// Publish sends one chunk to the registry endpoint
func (p *RegistryPublisher) Publish(ctx context.Context, chunk *Chunk) error {
	payload, err := jsonx.Marshal(chunk)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypePublish, "failed to encode chunk")
	}

	var body bytes.Buffer
	gz := gzip.NewWriter(&body)
	if _, err := gz.Write(payload); err != nil {
		return errors.Wrap(err, errors.ErrorTypePublish, "failed to compress chunk")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypePublish, "failed to compress chunk")
	}

	headers := map[string]string{
		"Content-Type":     "application/json",
		"Content-Encoding": "gzip",
	}
	if p.token != "" {
		headers["Authorization"] = "Bearer " + p.token
	}

	resp, err := p.client.Post(ctx, p.endpoint, &body, headers)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypePublish, "registry request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Newf(errors.ErrorTypePublish, "registry returned status %d", resp.StatusCode)
	}

	p.logger.Debug("chunk published",
		zap.String("category", chunk.Category),
		zap.String("refresh_id", chunk.RefreshID),
		zap.Int("entities", len(chunk.Entities)),
		zap.Bool("has_more", chunk.HasMore))
	return nil
}
