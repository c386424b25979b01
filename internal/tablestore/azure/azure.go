// Package azure reads log tables from Azure Table Storage.
package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/tablestore"
)

const devStorageAccount = "devstoreaccount1"

func init() {
	tablestore.GlobalRegistry.Register(&Opener{})
}

// Opener opens Azure storage accounts from their connection strings.
type Opener struct{}

func (o *Opener) Name() string { return "azure" }

func (o *Opener) Accepts(connString string) bool {
	return AccountName(connString) != ""
}

func (o *Opener) Open(_ context.Context, connString string) (tablestore.Account, error) {
	name := AccountName(connString)
	if name == "" {
		return nil, fmt.Errorf("azure: connection string has no AccountName")
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connString, nil)
	if err != nil {
		return nil, fmt.Errorf("azure: %w", err)
	}
	return &Account{name: name, svc: svc}, nil
}

// AccountName extracts the storage account name from a connection string.
// It returns "" when the string names no account.
func AccountName(connString string) string {
	for _, part := range strings.Split(connString, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch {
		case strings.EqualFold(k, "AccountName"):
			return v
		case strings.EqualFold(k, "UseDevelopmentStorage") && strings.EqualFold(v, "true"):
			return devStorageAccount
		}
	}
	return ""
}

// Account is an Azure storage account.
type Account struct {
	name string
	svc  *aztables.ServiceClient
}

func (a *Account) Name() string { return a.name }

func (a *Account) Close() error { return nil }

func (a *Account) ListTables(ctx context.Context) ([]string, error) {
	var names []string
	pager := a.svc.NewListTablesPager(nil)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure: list tables of %s: %w", a.name, err)
		}
		for _, t := range resp.Tables {
			if t.Name != nil {
				names = append(names, *t.Name)
			}
		}
	}
	return names, nil
}

func (a *Account) Table(name string) tablestore.Table {
	return &Table{name: name, client: a.svc.NewClient(name)}
}

// Table is one Azure log table.
type Table struct {
	name   string
	client *aztables.Client
}

// entity mirrors the columns upstream log writers persist.
type entity struct {
	PartitionKey string    `json:"PartitionKey"`
	RowKey       string    `json:"RowKey"`
	Timestamp    time.Time `json:"Timestamp"`
	DateTime     time.Time `json:"DateTime"`
	Level        string    `json:"Level"`
	Env          string    `json:"Env"`
	Version      string    `json:"Version"`
	Component    string    `json:"Component"`
	Process      string    `json:"Process"`
	Context      string    `json:"Context"`
	Type         string    `json:"Type"`
	Stack        string    `json:"Stack"`
	Msg          string    `json:"Msg"`
}

func decodeEntity(raw []byte) (model.LogRecord, error) {
	var e entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.LogRecord{}, fmt.Errorf("azure: decode entity: %w", err)
	}
	return model.LogRecord{
		PartitionKey: e.PartitionKey,
		RowKey:       e.RowKey,
		Timestamp:    e.Timestamp,
		DateTime:     e.DateTime,
		Level:        e.Level,
		Env:          e.Env,
		Version:      e.Version,
		Component:    e.Component,
		Process:      e.Process,
		Context:      e.Context,
		Type:         e.Type,
		Stack:        e.Stack,
		Msg:          e.Msg,
	}, nil
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func datetime(t time.Time) string {
	return "datetime'" + t.UTC().Format("2006-01-02T15:04:05.0000000Z") + "'"
}

func rangeFilter(partitionKey, afterRowKey string) string {
	return "PartitionKey eq " + quote(partitionKey) + " and RowKey gt " + quote(afterRowKey)
}

func windowFilter(partitionKey string, from, to time.Time) string {
	return "PartitionKey eq " + quote(partitionKey) +
		" and Timestamp ge " + datetime(from) +
		" and Timestamp le " + datetime(to)
}

// list pages through the entities matching filter until limit rows are
// collected. A non-positive limit reads every page.
func (t *Table) list(ctx context.Context, filter string, limit int) ([]model.LogRecord, error) {
	opts := &aztables.ListEntitiesOptions{}
	if filter != "" {
		opts.Filter = &filter
	}
	if limit > 0 {
		top := int32(limit)
		opts.Top = &top
	}
	var out []model.LogRecord
	pager := t.client.NewListEntitiesPager(opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure: query %s: %w", t.name, err)
		}
		for _, raw := range resp.Entities {
			rec, err := decodeEntity(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (t *Table) First(ctx context.Context) (*model.LogRecord, error) {
	rows, err := t.list(ctx, "", 1)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (t *Table) QueryRange(ctx context.Context, partitionKey, afterRowKey string, limit int) ([]model.LogRecord, error) {
	return t.list(ctx, rangeFilter(partitionKey, afterRowKey), limit)
}

func (t *Table) QueryWindow(ctx context.Context, partitionKey string, from, to time.Time) ([]model.LogRecord, error) {
	return t.list(ctx, windowFilter(partitionKey, from, to), 0)
}
