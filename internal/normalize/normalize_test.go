package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/registry"
)

func source(class model.Classification) *registry.Source {
	return registry.NewSource("acct", "AppLog", "", class, nil, model.Cursor{})
}

func record() model.LogRecord {
	return model.LogRecord{
		RowKey:    "10:00:00.0000000",
		DateTime:  time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
		Level:     "error",
		Version:   "1.2.3",
		Component: "Api",
		Process:   "Handle",
		Context:   `{"clientId":"42","amount":1.50}`,
		Type:      "Exception",
		Stack:     "at Foo()",
		Msg:       "boom",
	}
}

func TestNormalize_SensitiveRedacts(t *testing.T) {
	for _, parse := range []bool{false, true} {
		ev := Normalizer{ParseContext: parse}.Normalize(record(), source(model.ClassificationSensitive))
		if ev.Process != nil || ev.Context != nil || ev.Msg != nil {
			t.Fatalf("parse=%v: sensitive fields leaked: %+v", parse, ev)
		}
		if ev.Stack != "at Foo()" || ev.Level != "error" {
			t.Fatalf("non-sensitive fields dropped: %+v", ev)
		}

		raw, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc map[string]any
		_ = json.Unmarshal(raw, &doc)
		for _, k := range []string{"process", "context", "msg"} {
			v, ok := doc[k]
			if !ok || v != nil {
				t.Fatalf("%s should serialize as null, got %v (present=%v)", k, v, ok)
			}
		}
	}
}

func TestNormalize_DefaultKeepsFieldsAndAnnotates(t *testing.T) {
	ev := Normalizer{}.Normalize(record(), source(model.ClassificationDefault))
	if ev.Process == nil || *ev.Process != "Handle" || ev.Msg == nil || *ev.Msg != "boom" {
		t.Fatalf("fields lost: %+v", ev)
	}
	if ev.Context != `{"clientId":"42","amount":1.50}` {
		t.Fatalf("context should stay a string when parsing is off, got %#v", ev.Context)
	}
	if ev.Table != "AppLog" || ev.AccountName != "acct" || ev.RowKey != "10:00:00.0000000" {
		t.Fatalf("annotations missing: %+v", ev)
	}
}

func TestNormalize_ParsesJSONContext(t *testing.T) {
	ev := Normalizer{ParseContext: true}.Normalize(record(), source(model.ClassificationDefault))
	want := map[string]any{"clientId": "42", "amount": json.Number("1.50")}
	if diff := cmp.Diff(want, ev.Context); diff != "" {
		t.Fatalf("context mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_ContextParseFallbacks(t *testing.T) {
	cases := []string{
		"",
		"plain text",
		"{not json",
		`{"a":1} trailing`,
		`["array"]`,
	}
	n := Normalizer{ParseContext: true}
	for _, in := range cases {
		rec := record()
		rec.Context = in
		ev := n.Normalize(rec, source(model.ClassificationDefault))
		if ev.Context != in {
			t.Errorf("context %q: got %#v, want the raw string", in, ev.Context)
		}
	}
}

func TestNormalize_WireFieldNames(t *testing.T) {
	ev := Normalizer{}.Normalize(record(), source(model.ClassificationDefault))
	raw, _ := json.Marshal(ev)
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := []string{"dateTime", "level", "version", "component", "process", "context", "type", "stack", "msg", "table", "accountName"}
	if len(doc) != len(want) {
		t.Fatalf("got %d fields, want %d: %v", len(doc), len(want), doc)
	}
	for _, k := range want {
		if _, ok := doc[k]; !ok {
			t.Errorf("missing field %q", k)
		}
	}
}
