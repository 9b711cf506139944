// Package migrate runs ordered, idempotent schema transforms against a
// store.DB before any other writer opens it, tracking progress in the
// meta/migration_version key.
//
// Grounded on an explicit ordered-migration design; kaspad has no direct
// analogue (it predates a migration layer) so the ordering/idempotency
// contract follows original_source's db-migration crate instead.
package migrate

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/store"
)

// Migration transforms the store from the schema version it declares to
// the next one. Transforms must be safe to re-run (idempotent) since a
// crash between Commit and the version-bump write can replay them.
type Migration interface {
	// Version names the schema version this migration produces.
	Version() string
	// Run applies the transform. Implementations that can run as
	// background work should do so internally and return promptly,
	// since Runner.Run blocks on each Run returning.
	Run(db store.DB) error
}

// ErrMigrationRequired is returned by Runner.Run when the store's version
// is older than the newest known migration and allowRun is false; the
// caller (e.g. a CLI) can prompt for confirmation before retrying with
// allowRun true.
var ErrMigrationRequired = errors.New("migrate: store schema is out of date")

// Runner applies a fixed, ordered set of migrations to a store.
type Runner struct {
	migrations []Migration
}

// NewRunner builds a Runner over migrations, which need not be supplied in
// order; Runner sorts them by Version.
func NewRunner(migrations ...Migration) *Runner {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version() < sorted[j].Version() })
	return &Runner{migrations: sorted}
}

// CurrentVersion reads the store's recorded schema version, or "" if the
// store has never been migrated (a fresh database).
func CurrentVersion(db store.DB) (string, error) {
	v, err := db.Get(store.ColumnMeta, store.MigrationVersionKey)
	if err == store.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "migrate: read version")
	}
	return string(v), nil
}

// Run applies every migration strictly newer than the store's current
// version, in Version order, recording each migration's version as soon
// as it succeeds, so the last one recorded is the final version. If
// allowRun is false and any migration would need to run, Run returns
// ErrMigrationRequired without applying anything.
func (r *Runner) Run(db store.DB, allowRun bool) error {
	current, err := CurrentVersion(db)
	if err != nil {
		return err
	}
	pending := make([]Migration, 0, len(r.migrations))
	for _, m := range r.migrations {
		if m.Version() > current {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	if !allowRun {
		return ErrMigrationRequired
	}
	for _, m := range pending {
		if err := m.Run(db); err != nil {
			return errors.Wrapf(err, "migrate: running migration %s", m.Version())
		}
		if err := db.Put(store.ColumnMeta, store.MigrationVersionKey, []byte(m.Version())); err != nil {
			return errors.Wrapf(err, "migrate: recording version %s", m.Version())
		}
	}
	return nil
}
