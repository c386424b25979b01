// Package discovery finds log tables in the configured storage accounts
// and registers them as sources.
package discovery

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/akave-ai/logreader/internal/clock"
	"github.com/akave-ai/logreader/internal/config"
	"github.com/akave-ai/logreader/internal/model"
	"github.com/akave-ai/logreader/internal/registry"
	"github.com/akave-ai/logreader/internal/tablestore"
)

// OwnAuditTable is the job's own log table. It is always excluded so the
// job never ships its own output back to itself.
const OwnAuditTable = "LogReaderLog"

// Opener is satisfied by *tablestore.Registry.
type Opener interface {
	Open(ctx context.Context, connString string) (tablestore.Account, error)
}

// Discoverer populates a source registry.
type Discoverer struct {
	opener   Opener
	registry *registry.Registry
	exclude  map[string]bool
	clock    clock.Clock
	log      zerolog.Logger

	open []tablestore.Account
}

func New(opener Opener, reg *registry.Registry, exclude []string, clk clock.Clock, logger zerolog.Logger) *Discoverer {
	if clk == nil {
		clk = clock.Real()
	}
	ex := map[string]bool{strings.ToLower(OwnAuditTable): true}
	for _, name := range exclude {
		if name = strings.TrimSpace(name); name != "" {
			ex[strings.ToLower(name)] = true
		}
	}
	return &Discoverer{
		opener:   opener,
		registry: reg,
		exclude:  ex,
		clock:    clk,
		log:      logger.With().Str("component", "discovery").Logger(),
	}
}

type target struct {
	account        tablestore.Account
	connString     string
	classification model.Classification
}

// Discover opens every account, filters and probes its tables, and
// registers the accepted ones. Accounts that resolve to the same name are
// merged and the later entry wins. Failures are logged and skipped. It
// returns the number of sources added.
func (d *Discoverer) Discover(ctx context.Context, accounts []config.Account) int {
	targets := d.openAll(ctx, accounts)

	added := 0
	for _, t := range targets {
		added += d.discoverAccount(ctx, t)
	}
	d.log.Info().Int("accounts", len(targets)).Int("added", added).Int("total", d.registry.Len()).Msg("discovery finished")
	return added
}

// Close releases every account connection opened by Discover.
func (d *Discoverer) Close() error {
	var errs []error
	for _, acc := range d.open {
		if err := acc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.open = nil
	return errors.Join(errs...)
}

func (d *Discoverer) openAll(ctx context.Context, accounts []config.Account) []*target {
	byName := make(map[string]*target)
	var order []string
	for i, a := range accounts {
		acc, err := d.opener.Open(ctx, a.ConnString)
		if err != nil {
			d.log.Error().Err(err).Int("index", i).Str("classification", string(a.Classification)).Msg("open account failed")
			continue
		}
		name := acc.Name()
		if prev, ok := byName[name]; ok {
			d.log.Warn().Str("account", name).
				Str("previous", string(prev.classification)).
				Str("classification", string(a.Classification)).
				Msg("account listed more than once, last entry wins")
			_ = prev.account.Close()
		} else {
			order = append(order, name)
		}
		byName[name] = &target{account: acc, connString: a.ConnString, classification: a.Classification}
	}

	out := make([]*target, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
		d.open = append(d.open, byName[name].account)
	}
	return out
}

func (d *Discoverer) discoverAccount(ctx context.Context, t *target) int {
	name := t.account.Name()
	log := d.log.With().Str("account", name).Logger()

	tables, err := t.account.ListTables(ctx)
	if err != nil {
		log.Error().Err(err).Msg("list tables failed")
		return 0
	}

	added := 0
	for _, table := range Candidates(tables, d.exclude) {
		if d.registry.Contains(name, table) {
			continue
		}
		store := t.account.Table(table)
		rec, err := store.First(ctx)
		if err != nil {
			log.Error().Err(err).Str("table", table).Msg("probe failed")
			continue
		}
		if !Accept(rec) {
			log.Debug().Str("table", table).Msg("table does not look like a log table, skipping")
			continue
		}
		src := registry.NewSource(name, table, t.connString, t.classification, store, model.NewCursorAt(d.clock.Now()))
		if d.registry.Add(src) {
			added++
			cur := src.Cursor()
			log.Info().
				Str("table", table).
				Str("classification", string(t.classification)).
				Str("partition_key", cur.PartitionKey).
				Str("row_key", cur.RowKey).
				Msg("registered log table")
		}
	}
	return added
}

// Candidates keeps tables whose name contains "log" (any case), or the
// only table of a single-table account, minus the excluded names.
func Candidates(tables []string, exclude map[string]bool) []string {
	var out []string
	for _, t := range tables {
		if exclude[strings.ToLower(t)] {
			continue
		}
		if len(tables) == 1 || strings.Contains(strings.ToLower(t), "log") {
			out = append(out, t)
		}
	}
	return out
}

// Accept reports whether a probed row has the log schema: a timestamp, a
// level, and a message or stack trace.
func Accept(rec *model.LogRecord) bool {
	if rec == nil {
		return false
	}
	return !rec.DateTime.IsZero() && rec.Level != "" && (rec.Msg != "" || rec.Stack != "")
}
