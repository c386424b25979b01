// Package normalize maps raw log rows into the documents sent downstream.
package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/registry"
)

// Normalizer turns LogRecords into OutboundEvents.
type Normalizer struct {
	// ParseContext enables decoding of JSON-object contexts.
	ParseContext bool
}

// Normalize redacts and annotates rec for src. Sensitive sources never
// carry process, context or message downstream.
func (n Normalizer) Normalize(rec model.LogRecord, src *registry.Source) model.OutboundEvent {
	ev := model.OutboundEvent{
		DateTime:    rec.DateTime,
		Level:       rec.Level,
		Version:     rec.Version,
		Component:   rec.Component,
		Type:        rec.Type,
		Stack:       rec.Stack,
		Table:       src.Table,
		AccountName: src.Account,
		RowKey:      rec.RowKey,
	}
	if src.Sensitive() {
		return ev
	}
	ev.Process = strPtr(rec.Process)
	ev.Msg = strPtr(rec.Msg)
	ev.Context = n.context(rec.Context)
	return ev
}

// NormalizeAll normalizes a batch preserving order.
func (n Normalizer) NormalizeAll(recs []model.LogRecord, src *registry.Source) []model.OutboundEvent {
	out := make([]model.OutboundEvent, len(recs))
	for i, rec := range recs {
		out[i] = n.Normalize(rec, src)
	}
	return out
}

func (n Normalizer) context(raw string) any {
	if !n.ParseContext || raw == "" || !strings.HasPrefix(raw, "{") {
		return raw
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || dec.More() {
		return raw
	}
	return obj
}

func strPtr(s string) *string { return &s }
