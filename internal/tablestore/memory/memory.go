// Package memory is an in-process table store for tests. Connection strings
// of the form "memory://<account>" resolve against the Store the opener was
// built with.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/tablestore"
)

const scheme = "memory://"

// Store holds accounts by name.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{accounts: make(map[string]*Account)}
}

// Account returns the named account, creating it on first use.
func (s *Store) Account(name string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[name]
	if !ok {
		acc = &Account{name: name, tables: make(map[string]*table)}
		s.accounts[name] = acc
	}
	return acc
}

// ConnString returns the connection string that opens the named account.
func ConnString(account string) string { return scheme + account }

// Opener resolves memory:// connection strings against a Store.
type Opener struct {
	Store *Store
}

func (o *Opener) Name() string { return "memory" }

func (o *Opener) Accepts(connString string) bool {
	return strings.HasPrefix(connString, scheme)
}

func (o *Opener) Open(_ context.Context, connString string) (tablestore.Account, error) {
	name := strings.TrimPrefix(connString, scheme)
	if name == "" {
		return nil, fmt.Errorf("memory: empty account name")
	}
	return o.Store.Account(name), nil
}

// Account is an in-memory account. It is safe for concurrent use.
type Account struct {
	name string

	mu      sync.Mutex
	tables  map[string]*table
	listErr error
}

type table struct {
	rows     []model.LogRecord
	queryErr error
	probeErr error
}

func (a *Account) Name() string { return a.name }

func (a *Account) Close() error { return nil }

// CreateTable registers an empty table.
func (a *Account) CreateTable(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tableLocked(name)
}

// Put appends rows to a table, creating it if needed.
func (a *Account) Put(name string, rows ...model.LogRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t := a.tableLocked(name)
	t.rows = append(t.rows, rows...)
}

// FailQueries makes range and window queries on the table return err. Nil clears it.
func (a *Account) FailQueries(name string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tableLocked(name).queryErr = err
}

// FailProbe makes First on the table return err. Nil clears it.
func (a *Account) FailProbe(name string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tableLocked(name).probeErr = err
}

// FailList makes ListTables return err. Nil clears it.
func (a *Account) FailList(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listErr = err
}

func (a *Account) tableLocked(name string) *table {
	t, ok := a.tables[name]
	if !ok {
		t = &table{}
		a.tables[name] = t
	}
	return t
}

func (a *Account) ListTables(_ context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listErr != nil {
		return nil, a.listErr
	}
	names := make([]string, 0, len(a.tables))
	for name := range a.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (a *Account) Table(name string) tablestore.Table {
	return &tableHandle{account: a, name: name}
}

type tableHandle struct {
	account *Account
	name    string
}

// snapshot copies the table rows sorted by partition and row key.
func (h *tableHandle) snapshot() ([]model.LogRecord, *table, bool) {
	h.account.mu.Lock()
	defer h.account.mu.Unlock()
	t, ok := h.account.tables[h.name]
	if !ok {
		return nil, nil, false
	}
	rows := make([]model.LogRecord, len(t.rows))
	copy(rows, t.rows)
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].PartitionKey != rows[j].PartitionKey {
			return rows[i].PartitionKey < rows[j].PartitionKey
		}
		return rows[i].RowKey < rows[j].RowKey
	})
	cp := *t
	return rows, &cp, true
}

func (h *tableHandle) First(_ context.Context) (*model.LogRecord, error) {
	rows, t, ok := h.snapshot()
	if !ok {
		return nil, fmt.Errorf("memory: table %q not found", h.name)
	}
	if t.probeErr != nil {
		return nil, t.probeErr
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (h *tableHandle) QueryRange(_ context.Context, partitionKey, afterRowKey string, limit int) ([]model.LogRecord, error) {
	rows, t, ok := h.snapshot()
	if !ok {
		return nil, fmt.Errorf("memory: table %q not found", h.name)
	}
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	var out []model.LogRecord
	for _, r := range rows {
		if r.PartitionKey != partitionKey || r.RowKey <= afterRowKey {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (h *tableHandle) QueryWindow(_ context.Context, partitionKey string, from, to time.Time) ([]model.LogRecord, error) {
	rows, t, ok := h.snapshot()
	if !ok {
		return nil, fmt.Errorf("memory: table %q not found", h.name)
	}
	if t.queryErr != nil {
		return nil, t.queryErr
	}
	var out []model.LogRecord
	for _, r := range rows {
		if r.PartitionKey != partitionKey || r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
