// Package router dispatches inbound broker frames by exact topic.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tramcast/tramcast/internal/agent/core"
	"github.com/tramcast/tramcast/internal/pkg/metrics"
	"github.com/tramcast/tramcast/pkg/mqtt"
	"github.com/tramcast/tramcast/pkg/mqtt/topic"
)

// Recoverable routing errors. The frame is dropped and nothing changes.
var (
	ErrMalformedStatus    = errors.New("malformed status payload")
	ErrUnknownTopic       = errors.New("unknown topic")
	ErrInvalidConfirm     = errors.New("invalid confirm payload")
	ErrUnexpectedFragment = errors.New("continuation fragment without a live transfer")
)

// ChunkHandler consumes firmware chunks.
type ChunkHandler interface {
	HandleChunk(ctx context.Context, msg mqtt.Message) error
	// Active reports whether a transfer is live.
	Active() bool
}

// BootHandler forwards confirm and rollback requests to the storage.
type BootHandler interface {
	Confirm(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Router classifies frames against the topic table.
type Router struct {
	topics    *topic.Table
	publisher core.Publisher
	chunks    ChunkHandler
	boot      BootHandler
	schema    *jsonschema.Schema
}

func New(topics *topic.Table, publisher core.Publisher, chunks ChunkHandler, boot BootHandler) (*Router, error) {
	schema, err := compileStatusSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile status schema: %w", err)
	}
	return &Router{
		topics:    topics,
		publisher: publisher,
		chunks:    chunks,
		boot:      boot,
		schema:    schema,
	}, nil
}

// Route handles one frame. Topics match exactly and case-sensitively. The
// returned error is nil, one of the recoverable sentinels, or a fatal
// error from the OTA path.
func (r *Router) Route(ctx context.Context, msg mqtt.Message) error {
	route, err := r.route(ctx, msg)

	result := "ok"
	switch {
	case core.IsFatal(err):
		result = "fatal"
	case err != nil:
		result = "dropped"
	}
	metrics.MessagesRoutedTotal.WithLabelValues(route, result).Inc()

	return err
}

func (r *Router) route(ctx context.Context, msg mqtt.Message) (string, error) {
	switch msg.Topic {
	case r.topics.Tram:
		return "status", r.routeStatus(ctx, topic.Tram, msg)

	case r.topics.Metro:
		return "status", r.routeStatus(ctx, topic.Metro, msg)

	case r.topics.OTAData:
		return "ota", r.chunks.HandleChunk(ctx, msg)

	case "":
		if !r.chunks.Active() {
			return "ota", fmt.Errorf("%w: offset %d of %d", ErrUnexpectedFragment, msg.Details.Offset, msg.Details.Total)
		}
		return "ota", r.chunks.HandleChunk(ctx, msg)

	case r.topics.OTAConfirm:
		if string(msg.Payload) != topic.ConfirmToken {
			return "confirm", fmt.Errorf("%w: %q", ErrInvalidConfirm, truncate(msg.Payload))
		}
		return "confirm", r.boot.Confirm(ctx)

	case r.topics.Rollback:
		return "rollback", r.boot.Rollback(ctx)

	default:
		return "unknown", fmt.Errorf("%w: %q", ErrUnknownTopic, msg.Topic)
	}
}

// routeStatus publishes the record under the entity name (topic.Tram or
// topic.Metro) regardless of the topic root.
func (r *Router) routeStatus(ctx context.Context, entity string, msg mqtt.Message) error {
	// Numbers stay json.Number so "integer" is checked on the exact value.
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(msg.Payload))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedStatus, err)
	}
	if err := r.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedStatus, err)
	}

	var rec core.StatusRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedStatus, err)
	}

	logr.FromContextOrDiscard(ctx).V(1).Info("Status updated", "entity", entity, "empty", rec.Empty())
	r.publisher.Send(core.Status(entity, &rec))
	return nil
}

func truncate(p []byte) string {
	const limit = 32
	if len(p) > limit {
		return string(p[:limit]) + "..."
	}
	return string(p)
}
