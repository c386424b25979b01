package registry

import (
	"sync"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/tablestore"
)

// Source is one log table being tailed. Identity fields are fixed at
// creation; the cursor is written only by the reader scanning the source.
type Source struct {
	Account              string
	Table                string
	ConnectionDescriptor string
	Classification       model.Classification
	Store                tablestore.Table

	mu     sync.Mutex
	cursor model.Cursor
}

// NewSource returns a Source positioned at cursor.
func NewSource(account, table, connString string, class model.Classification, store tablestore.Table, cursor model.Cursor) *Source {
	return &Source{
		Account:              account,
		Table:                table,
		ConnectionDescriptor: connString,
		Classification:       class,
		Store:                store,
		cursor:               cursor,
	}
}

// Cursor returns a copy of the current read position.
func (s *Source) Cursor() model.Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Advance moves the high-water row key forward. Keys at or below the
// current mark are ignored so the mark never decreases within a partition.
func (s *Source) Advance(rowKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rowKey <= s.cursor.RowKey {
		return false
	}
	s.cursor.RowKey = rowKey
	return true
}

// Roll moves the cursor to a new partition with the row marker reset.
func (s *Source) Roll(partitionKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = model.Cursor{PartitionKey: partitionKey, RowKey: model.PartitionStart}
}

func (s *Source) Sensitive() bool {
	return s.Classification == model.ClassificationSensitive
}

func (s *Source) String() string {
	return s.Table + " (" + s.Account + ")"
}
