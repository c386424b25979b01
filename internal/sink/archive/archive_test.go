package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/model"
)

type upload struct {
	key, contentType, contentEncoding string
	data                              []byte
}

type fakeUploader struct {
	uploads []upload
	failAt  int // 1-based call that fails; 0 never
}

func (u *fakeUploader) PutObject(_ context.Context, key string, data []byte, ct, ce string) error {
	if u.failAt == len(u.uploads)+1 {
		return errors.New("slow down")
	}
	u.uploads = append(u.uploads, upload{key: key, data: data, contentType: ct, contentEncoding: ce})
	return nil
}

func ev(account, table, msg string) model.OutboundEvent {
	m := msg
	return model.OutboundEvent{Level: "info", Msg: &m, AccountName: account, Table: table}
}

func decode(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	var docs []map[string]any
	sc := bufio.NewScanner(zr)
	for sc.Scan() {
		var doc map[string]any
		if err := json.Unmarshal(sc.Bytes(), &doc); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		docs = append(docs, doc)
	}
	return docs
}

func newSink(u Uploader) *Sink {
	fc := clock.NewFake(time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC))
	return New(u, "", fc, zerolog.Nop())
}

func TestKey(t *testing.T) {
	s := newSink(&fakeUploader{})
	if got := s.Key("acct", "AppLog", "abc"); got != "logs/acct/AppLog/2024/03/05/abc.ndjson.gz" {
		t.Fatalf("key = %s", got)
	}
	if got := s.Key("", "AppLog", "abc"); !strings.HasPrefix(got, "logs/default/") {
		t.Fatalf("key = %s", got)
	}
}

func TestEncode_GzipNDJSON(t *testing.T) {
	data, err := Encode([]model.OutboundEvent{ev("a", "T", "1"), ev("a", "T", "2")})
	if err != nil {
		t.Fatal(err)
	}
	docs := decode(t, data)
	if len(docs) != 2 || docs[1]["msg"] != "2" {
		t.Fatalf("docs = %v", docs)
	}
}

func TestSendBatch_OneObjectPerSourceRun(t *testing.T) {
	u := &fakeUploader{}
	s := newSink(u)
	events := []model.OutboundEvent{ev("a", "T1", "1"), ev("a", "T1", "2"), ev("b", "T2", "3")}
	n, err := s.SendBatch(context.Background(), events)
	if err != nil || n != 3 {
		t.Fatalf("SendBatch = %d, %v", n, err)
	}
	if len(u.uploads) != 2 {
		t.Fatalf("uploads = %d, want 2", len(u.uploads))
	}
	if !strings.HasPrefix(u.uploads[0].key, "logs/a/T1/2024/03/05/") || !strings.HasPrefix(u.uploads[1].key, "logs/b/T2/") {
		t.Errorf("keys = %s, %s", u.uploads[0].key, u.uploads[1].key)
	}
	if u.uploads[0].contentType != "application/x-ndjson" || u.uploads[0].contentEncoding != "gzip" {
		t.Errorf("content headers = %+v", u.uploads[0])
	}
	if docs := decode(t, u.uploads[0].data); len(docs) != 2 {
		t.Errorf("first object has %d docs", len(docs))
	}
}

func TestSendBatch_FailedUploadStopsAtPrefix(t *testing.T) {
	u := &fakeUploader{failAt: 2}
	s := newSink(u)
	events := []model.OutboundEvent{ev("a", "T1", "1"), ev("b", "T2", "2"), ev("c", "T3", "3")}
	n, err := s.SendBatch(context.Background(), events)
	if n != 1 || err == nil {
		t.Fatalf("SendBatch = %d, %v; want 1 and an error", n, err)
	}
}
