package sink

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/akave-ai/logreader/internal/model"
)

func TestApply(t *testing.T) {
	if Apply(nil).StopOnFailure {
		t.Fatal("default should retry")
	}
	if !Apply([]SendOption{StopOnFailure()}).StopOnFailure {
		t.Fatal("StopOnFailure not applied")
	}
}

func TestLine(t *testing.T) {
	msg := "hello"
	b, err := Line(model.OutboundEvent{Level: "info", Msg: &msg, Table: "AppLog", RowKey: "01"})
	if err != nil {
		t.Fatalf("line: %v", err)
	}
	if !bytes.HasSuffix(b, []byte("\n")) || bytes.Count(b, []byte("\n")) != 1 {
		t.Fatalf("expected exactly one trailing newline: %q", b)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("not a JSON document: %v", err)
	}
	if doc["msg"] != "hello" || doc["table"] != "AppLog" {
		t.Fatalf("unexpected document: %v", doc)
	}
	if _, ok := doc["RowKey"]; ok {
		t.Fatal("row key must not be serialized")
	}
}
