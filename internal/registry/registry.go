// Package registry holds the sources discovered for tailing. The set only
// grows: sources are never removed for the life of the process.
package registry

import (
	"sort"
	"strings"
	"sync"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	sources []*Source
	index   map[string]*Source
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{index: make(map[string]*Source)}
}

func key(account, table string) string {
	return strings.ToLower(account) + "\x00" + strings.ToLower(table)
}

// Add registers src unless a source with the same account and table name
// (case-insensitive) is present. It reports whether src was added.
func (r *Registry) Add(src *Source) bool {
	k := key(src.Account, src.Table)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[k]; ok {
		return false
	}
	r.index[k] = src
	r.sources = append(r.sources, src)
	return true
}

// Contains reports whether account/table is registered.
func (r *Registry) Contains(account, table string) bool {
	_, ok := r.Find(account, table)
	return ok
}

// Find looks a source up by account and table name, case-insensitive.
func (r *Registry) Find(account, table string) (*Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.index[key(account, table)]
	return src, ok
}

// Sources returns a snapshot of the registered sources in discovery order.
func (r *Registry) Sources() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Source, len(r.sources))
	copy(out, r.sources)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// TableReport is the inventory line for one source.
type TableReport struct {
	TableName    string `json:"tableName"`
	PartitionKey string `json:"partitionKey"`
	LastRowKey   string `json:"lastRowKey"`
}

// AccountReport groups the inventory of one account.
type AccountReport struct {
	AccountName string        `json:"accountName"`
	Tables      []TableReport `json:"tables"`
}

// Report returns the inventory grouped by account, with accounts and
// tables sorted by name.
func (r *Registry) Report() []AccountReport {
	byAccount := make(map[string][]TableReport)
	for _, src := range r.Sources() {
		c := src.Cursor()
		byAccount[src.Account] = append(byAccount[src.Account], TableReport{
			TableName:    src.Table,
			PartitionKey: c.PartitionKey,
			LastRowKey:   c.RowKey,
		})
	}
	out := make([]AccountReport, 0, len(byAccount))
	for account, tables := range byAccount {
		sort.Slice(tables, func(i, j int) bool { return tables[i].TableName < tables[j].TableName })
		out = append(out, AccountReport{AccountName: account, Tables: tables})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountName < out[j].AccountName })
	return out
}
