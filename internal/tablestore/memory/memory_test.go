package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/tablestore"
)

func TestQueryRange_OrderAndBounds(t *testing.T) {
	store := NewStore()
	acc := store.Account("acct")
	acc.Put("AppLog",
		model.LogRecord{PartitionKey: "2024-03-05", RowKey: "03"},
		model.LogRecord{PartitionKey: "2024-03-05", RowKey: "01"},
		model.LogRecord{PartitionKey: "2024-03-06", RowKey: "01"},
		model.LogRecord{PartitionKey: "2024-03-05", RowKey: "02"},
	)

	rows, err := acc.Table("AppLog").QueryRange(context.Background(), "2024-03-05", "01", 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 || rows[0].RowKey != "02" || rows[1].RowKey != "03" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	rows, _ = acc.Table("AppLog").QueryRange(context.Background(), "2024-03-05", "00", 1)
	if len(rows) != 1 || rows[0].RowKey != "01" {
		t.Fatalf("limit not honoured: %+v", rows)
	}
}

func TestQueryWindow(t *testing.T) {
	acc := NewStore().Account("acct")
	base := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	acc.Put("AppLog",
		model.LogRecord{PartitionKey: "2024-03-05", RowKey: "a", Timestamp: base},
		model.LogRecord{PartitionKey: "2024-03-05", RowKey: "b", Timestamp: base.Add(time.Hour)},
		model.LogRecord{PartitionKey: "2024-03-05", RowKey: "c", Timestamp: base.Add(2 * time.Hour)},
	)
	rows, err := acc.Table("AppLog").QueryWindow(context.Background(), "2024-03-05", base.Add(time.Minute), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(rows) != 2 || rows[0].RowKey != "b" || rows[1].RowKey != "c" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestFailureInjection(t *testing.T) {
	acc := NewStore().Account("acct")
	boom := errors.New("boom")
	acc.FailQueries("AppLog", boom)
	if _, err := acc.Table("AppLog").QueryRange(context.Background(), "p", "", 1); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	acc.FailQueries("AppLog", nil)
	if _, err := acc.Table("AppLog").QueryRange(context.Background(), "p", "", 1); err != nil {
		t.Fatalf("cleared failure still returned %v", err)
	}
}

func TestOpenerThroughRegistry(t *testing.T) {
	store := NewStore()
	store.Account("acct").CreateTable("AppLog")

	reg := tablestore.NewRegistry()
	reg.Register(&Opener{Store: store})

	acc, err := reg.Open(context.Background(), ConnString("acct"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if acc.Name() != "acct" {
		t.Fatalf("name = %q", acc.Name())
	}
	names, _ := acc.ListTables(context.Background())
	if len(names) != 1 || names[0] != "AppLog" {
		t.Fatalf("tables = %v", names)
	}

	if _, err := reg.Open(context.Background(), "nope://x"); !errors.Is(err, tablestore.ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}
