package iocache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"github.com/jmoiron/sqlx"
)

// flagsTable is the name of the table for unit skip flags.
const flagsTable = "spikewave_unit_flags"

// flagRow is the database shape of a UnitFlag. updated_at holds unix nanoseconds
// so that every backend stores the same integer.
type flagRow struct {
	schema.UnitKey
	Skip      bool   `db:"skip_unit"`
	Reason    string `db:"reason"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r flagRow) toFlag() schema.UnitFlag {
	return schema.UnitFlag{
		UnitKey:   r.UnitKey,
		Skip:      r.Skip,
		Reason:    r.Reason,
		UpdatedAt: time.Unix(0, r.UpdatedAt),
	}
}

// FlagStoreImpl persists unit flags using various database backends.
type FlagStoreImpl struct {
	db        *sqlx.DB
	tableName string
	backend   schema.DatabaseBackend
}

var _ contract.FlagStore = &FlagStoreImpl{} // Compile-time check

// NewFlagStore initializes and returns a new FlagStore based on the backend type.
func NewFlagStore(tableName string, backend schema.DatabaseBackend, connStr string) (contract.FlagStore, error) {
	// Validate table name to prevent SQL injection
	if err := validateTableName(tableName); err != nil {
		return nil, err
	}

	if backend == schema.NoneBackend {
		// Return a no-op store for disabled flagging
		return &FlagStoreImpl{tableName: tableName, backend: backend}, nil
	}

	db, err := openDB(backend, connStr, contract.GetFlagDBFilePath())
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(getCreateFlagsTableQuery(tableName, backend)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	return &FlagStoreImpl{db: db, tableName: tableName, backend: backend}, nil
}

// getCreateFlagsTableQuery returns the CREATE TABLE query for the given backend.
func getCreateFlagsTableQuery(tableName string, backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(tableName, backend)
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_name VARCHAR(255) NOT NULL,
				recording VARCHAR(255) NOT NULL,
				probe VARCHAR(32) NOT NULL,
				skip_unit BOOLEAN NOT NULL,
				reason TEXT NOT NULL,
				updated_at BIGINT NOT NULL,
				PRIMARY KEY (session_name, recording, probe)
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_name TEXT NOT NULL,
				recording TEXT NOT NULL,
				probe TEXT NOT NULL,
				skip_unit BOOLEAN NOT NULL,
				reason TEXT NOT NULL,
				updated_at BIGINT NOT NULL,
				PRIMARY KEY (session_name, recording, probe)
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				session_name TEXT NOT NULL,
				recording TEXT NOT NULL,
				probe TEXT NOT NULL,
				skip_unit BOOLEAN NOT NULL,
				reason TEXT NOT NULL,
				updated_at INTEGER NOT NULL,
				PRIMARY KEY (session_name, recording, probe)
			);
		`, quotedTableName)
	}
}

// getUpsertQuery returns the named UPSERT query for the backend.
func (fs *FlagStoreImpl) getUpsertQuery() string {
	quotedTableName := quoteTableName(fs.tableName, fs.backend)
	const columns = `(session_name, recording, probe, skip_unit, reason, updated_at)`
	const values = `(:session_name, :recording, :probe, :skip_unit, :reason, :updated_at)`
	switch fs.backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`INSERT INTO %s %s VALUES %s AS new
			ON DUPLICATE KEY UPDATE skip_unit = new.skip_unit, reason = new.reason, updated_at = new.updated_at`, quotedTableName, columns, values)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`INSERT INTO %s %s VALUES %s
			ON CONFLICT (session_name, recording, probe) DO UPDATE SET skip_unit = EXCLUDED.skip_unit, reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at`, quotedTableName, columns, values)

	default: // SQLite
		return fmt.Sprintf(`INSERT OR REPLACE INTO %s %s VALUES %s`, quotedTableName, columns, values)
	}
}

// Get retrieves the flag of a unit.
func (fs *FlagStoreImpl) Get(unit schema.UnitKey) (schema.UnitFlag, bool, error) {
	if fs.db == nil {
		return schema.UnitFlag{}, false, nil
	}

	query := fs.db.Rebind(fmt.Sprintf(`SELECT session_name, recording, probe, skip_unit, reason, updated_at
		FROM %s WHERE session_name = ? AND recording = ? AND probe = ?`, quoteTableName(fs.tableName, fs.backend)))

	var row flagRow
	if err := fs.db.Get(&row, query, unit.Session, unit.Recording, unit.Probe); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.UnitFlag{}, false, nil
		}
		return schema.UnitFlag{}, false, fmt.Errorf("failed to get flag for %s: %w", unit, err)
	}
	return row.toFlag(), true, nil
}

// Set creates or replaces the flag of a unit. A zero UpdatedAt is stamped with the current time.
func (fs *FlagStoreImpl) Set(flag schema.UnitFlag) error {
	if fs.db == nil {
		return nil
	}
	updated := flag.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	row := flagRow{UnitKey: flag.UnitKey, Skip: flag.Skip, Reason: flag.Reason, UpdatedAt: updated.UnixNano()}
	if _, err := fs.db.NamedExec(fs.getUpsertQuery(), row); err != nil {
		return fmt.Errorf("failed to set flag for %s: %w", flag.UnitKey, err)
	}
	return nil
}

// Clear removes the flag of a unit.
func (fs *FlagStoreImpl) Clear(unit schema.UnitKey) error {
	if fs.db == nil {
		return nil
	}
	query := fs.db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE session_name = ? AND recording = ? AND probe = ?`,
		quoteTableName(fs.tableName, fs.backend)))
	if _, err := fs.db.Exec(query, unit.Session, unit.Recording, unit.Probe); err != nil {
		return fmt.Errorf("failed to clear flag for %s: %w", unit, err)
	}
	return nil
}

// List returns every flag ordered by unit.
func (fs *FlagStoreImpl) List() ([]schema.UnitFlag, error) {
	if fs.db == nil {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT session_name, recording, probe, skip_unit, reason, updated_at
		FROM %s ORDER BY session_name, recording, probe`, quoteTableName(fs.tableName, fs.backend))

	var rows []flagRow
	if err := fs.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	flags := make([]schema.UnitFlag, len(rows))
	for i, r := range rows {
		flags[i] = r.toFlag()
	}
	return flags, nil
}

// GetStatus returns status information about the flag store.
func (fs *FlagStoreImpl) GetStatus() (schema.FlagStatus, error) {
	status := schema.FlagStatus{
		Backend:   string(fs.backend),
		Connected: fs.db != nil,
	}
	if fs.db == nil {
		return status, nil
	}

	quotedTableName := quoteTableName(fs.tableName, fs.backend)
	var counts struct {
		Total int           `db:"total"`
		Skips sql.NullInt64 `db:"skips"`
		Last  sql.NullInt64 `db:"last_update"`
	}
	query := fmt.Sprintf(`SELECT COUNT(*) AS total,
		SUM(CASE WHEN skip_unit THEN 1 ELSE 0 END) AS skips,
		MAX(updated_at) AS last_update FROM %s`, quotedTableName)
	if err := fs.db.Get(&counts, query); err != nil {
		return status, fmt.Errorf("failed to get flag counts: %w", err)
	}

	status.TotalFlags = counts.Total
	status.SkipFlags = int(counts.Skips.Int64)
	if counts.Last.Valid {
		status.LastFlagTime = time.Unix(0, counts.Last.Int64)
	}
	return status, nil
}

// Close closes the underlying DB connection.
func (fs *FlagStoreImpl) Close() error {
	if fs.db != nil {
		return fs.db.Close()
	}
	return nil
}
