// Package tablestore defines the table-storage collaborator the job reads
// log tables through. Backends register an Opener in init() and are picked
// by the shape of the account connection string.
package tablestore

import (
	"context"
	"time"

	"github.com/akave-ai/logreader/internal/model"
)

// Account is one storage account holding log tables.
type Account interface {
	// Name is the stable account name derived from the credential.
	Name() string
	ListTables(ctx context.Context) ([]string, error)
	Table(name string) Table
	Close() error
}

// Table reads rows from one log table.
type Table interface {
	// First returns a single row for schema probing, or nil when the table is empty.
	First(ctx context.Context) (*model.LogRecord, error)

	// QueryRange returns up to limit rows of partitionKey whose row key is
	// strictly greater than afterRowKey, in ascending row key order.
	QueryRange(ctx context.Context, partitionKey, afterRowKey string, limit int) ([]model.LogRecord, error)

	// QueryWindow returns every row of partitionKey whose storage timestamp
	// lies in [from, to], in ascending row key order.
	QueryWindow(ctx context.Context, partitionKey string, from, to time.Time) ([]model.LogRecord, error)
}
