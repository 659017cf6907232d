package observability

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Annotator attaches custom parameters to the active transaction of a
// monitoring backend. Implementations must never fail the caller.
type Annotator interface {
	AddCustomParameters(ctx context.Context, params map[string]any)
}

// NoopAnnotator discards parameters.
type NoopAnnotator struct{}

// AddCustomParameters is a no-op.
func (NoopAnnotator) AddCustomParameters(context.Context, map[string]any) {}

// SpanAnnotator records parameters as "custom.<key>" attributes on the span
// carried by ctx. Non-scalar values are stored as JSON.
type SpanAnnotator struct{}

// AddCustomParameters implements Annotator.
func (SpanAnnotator) AddCustomParameters(ctx context.Context, params map[string]any) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(params))
	for k, v := range params {
		attrs = append(attrs, customAttribute("custom."+k, v))
	}
	span.SetAttributes(attrs...)
}

func customAttribute(key string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case nil:
		return attribute.String(key, "")
	case string:
		return attribute.String(key, val)
	case bool:
		return attribute.Bool(key, val)
	case int:
		return attribute.Int(key, val)
	case int64:
		return attribute.Int64(key, val)
	case float64:
		return attribute.Float64(key, val)
	case fmt.Stringer:
		return attribute.String(key, val.String())
	}
	b, err := json.Marshal(v)
	if err != nil {
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
	return attribute.String(key, string(b))
}
