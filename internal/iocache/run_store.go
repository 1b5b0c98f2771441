package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/huangsam/spikewave/schema"
	"github.com/jmoiron/sqlx"
)

// Table names for run tracking.
const (
	runsTable             = "spikewave_runs"
	unitResultsTable      = "spikewave_unit_results"
	clusterSummariesTable = "spikewave_cluster_summaries"
)

// runTables lists the run tracking tables in creation order.
var runTables = []string{runsTable, unitResultsTable, clusterSummariesTable}

// RunStoreImpl implements the RunStore interface.
type RunStoreImpl struct {
	db      *sqlx.DB
	backend schema.DatabaseBackend
}

var _ contract.RunStore = &RunStoreImpl{} // Compile-time check

// NewRunStore creates a new RunStore with the specified backend.
func NewRunStore(backend schema.DatabaseBackend, connStr string) (contract.RunStore, error) {
	if backend == schema.NoneBackend {
		// Return a no-op store for disabled tracking
		return &RunStoreImpl{backend: backend}, nil
	}

	db, err := openDB(backend, connStr, contract.GetRunDBFilePath())
	if err != nil {
		return nil, err
	}

	// Create the table schemas
	if err := createRunTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create run tables: %w", err)
	}

	return &RunStoreImpl{db: db, backend: backend}, nil
}

// createRunTables creates the run tracking tables.
func createRunTables(db *sqlx.DB, backend schema.DatabaseBackend) error {
	tables := []struct {
		name  string
		query string
	}{
		{runsTable, getCreateRunsQuery(backend)},
		{unitResultsTable, getCreateUnitResultsQuery(backend)},
		{clusterSummariesTable, getCreateClusterSummariesQuery(backend)},
	}

	for _, table := range tables {
		if _, err := db.Exec(table.query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
	}
	return nil
}

// getCreateRunsQuery returns the CREATE TABLE query for spikewave_runs.
func getCreateRunsQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(runsTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				run_uuid VARCHAR(36) NOT NULL,
				session_name VARCHAR(255) NOT NULL,
				start_time DATETIME(6) NOT NULL,
				end_time DATETIME(6),
				run_duration_ms BIGINT,
				units_completed INT,
				units_skipped INT,
				units_failed INT,
				config_params TEXT
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGSERIAL PRIMARY KEY,
				run_uuid TEXT NOT NULL,
				session_name TEXT NOT NULL,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ,
				run_duration_ms BIGINT,
				units_completed INT,
				units_skipped INT,
				units_failed INT,
				config_params TEXT
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_uuid TEXT NOT NULL,
				session_name TEXT NOT NULL,
				start_time TEXT NOT NULL,
				end_time TEXT,
				run_duration_ms INTEGER,
				units_completed INTEGER,
				units_skipped INTEGER,
				units_failed INTEGER,
				config_params TEXT
			);
		`, quotedTableName)
	}
}

// getCreateUnitResultsQuery returns the CREATE TABLE query for spikewave_unit_results.
func getCreateUnitResultsQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(unitResultsTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				session_name VARCHAR(255) NOT NULL,
				recording VARCHAR(255) NOT NULL,
				probe VARCHAR(32) NOT NULL,
				state VARCHAR(16) NOT NULL,
				reason TEXT,
				artifact_path TEXT,
				clusters INT NOT NULL,
				duration_ms BIGINT NOT NULL,
				PRIMARY KEY (run_id, recording, probe)
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				session_name TEXT NOT NULL,
				recording TEXT NOT NULL,
				probe TEXT NOT NULL,
				state TEXT NOT NULL,
				reason TEXT,
				artifact_path TEXT,
				clusters INT NOT NULL,
				duration_ms BIGINT NOT NULL,
				PRIMARY KEY (run_id, recording, probe)
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER NOT NULL,
				session_name TEXT NOT NULL,
				recording TEXT NOT NULL,
				probe TEXT NOT NULL,
				state TEXT NOT NULL,
				reason TEXT,
				artifact_path TEXT,
				clusters INTEGER NOT NULL,
				duration_ms INTEGER NOT NULL,
				PRIMARY KEY (run_id, recording, probe)
			);
		`, quotedTableName)
	}
}

// getCreateClusterSummariesQuery returns the CREATE TABLE query for spikewave_cluster_summaries.
func getCreateClusterSummariesQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(clusterSummariesTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				recording VARCHAR(255) NOT NULL,
				probe VARCHAR(32) NOT NULL,
				cluster_id INT NOT NULL,
				spike_count INT NOT NULL,
				valid_draws INT NOT NULL,
				total_draws INT NOT NULL,
				peak_snr DOUBLE NOT NULL,
				PRIMARY KEY (run_id, recording, probe, cluster_id)
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				recording TEXT NOT NULL,
				probe TEXT NOT NULL,
				cluster_id INT NOT NULL,
				spike_count INT NOT NULL,
				valid_draws INT NOT NULL,
				total_draws INT NOT NULL,
				peak_snr DOUBLE PRECISION NOT NULL,
				PRIMARY KEY (run_id, recording, probe, cluster_id)
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER NOT NULL,
				recording TEXT NOT NULL,
				probe TEXT NOT NULL,
				cluster_id INTEGER NOT NULL,
				spike_count INTEGER NOT NULL,
				valid_draws INTEGER NOT NULL,
				total_draws INTEGER NOT NULL,
				peak_snr REAL NOT NULL,
				PRIMARY KEY (run_id, recording, probe, cluster_id)
			);
		`, quotedTableName)
	}
}

// BeginRun creates a new run and returns its unique ID.
func (rs *RunStoreImpl) BeginRun(runUUID, session string, startTime time.Time, configParams map[string]any) (int64, error) {
	// Skip for NoneBackend
	if rs.db == nil {
		return 0, nil
	}

	// Serialize config params to JSON
	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	quotedTableName := quoteTableName(runsTable, rs.backend)
	query := rs.db.Rebind(fmt.Sprintf(`INSERT INTO %s (run_uuid, session_name, start_time, config_params) VALUES (?, ?, ?, ?)`, quotedTableName))
	args := []any{runUUID, session, formatTime(startTime, rs.backend), string(configJSON)}

	var runID int64
	switch rs.backend {
	case schema.PostgreSQLBackend:
		err = rs.db.QueryRow(query+" RETURNING run_id", args...).Scan(&runID)
	default: // SQLite and MySQL
		var result sql.Result
		result, err = rs.db.Exec(query, args...)
		if err == nil {
			runID, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	return runID, nil
}

// RecordUnitResult stores the outcome of one unit.
func (rs *RunStoreImpl) RecordUnitResult(runID int64, result schema.UnitResult) error {
	if rs.db == nil {
		return nil
	}

	quotedTableName := quoteTableName(unitResultsTable, rs.backend)
	query := fmt.Sprintf(`INSERT INTO %s (run_id, session_name, recording, probe, state, reason, artifact_path, clusters, duration_ms)
		VALUES (:run_id, :session_name, :recording, :probe, :state, :reason, :artifact_path, :clusters, :duration_ms)`, quotedTableName)

	row := unitResultRow{
		RunID:       runID,
		SessionName: result.Unit.Session,
		Recording:   result.Unit.Recording,
		Probe:       result.Unit.Probe,
		State:       string(result.State),
		Clusters:    int32(result.Clusters),
		DurationMs:  result.Duration.Milliseconds(),
	}
	if result.Reason != "" {
		row.Reason = sql.NullString{String: result.Reason, Valid: true}
	}
	if result.ArtifactPath != "" {
		row.ArtifactPath = sql.NullString{String: result.ArtifactPath, Valid: true}
	}

	if _, err := rs.db.NamedExec(query, row); err != nil {
		return fmt.Errorf("failed to insert unit result for %s: %w", result.Unit, err)
	}
	return nil
}

// RecordClusterSummaries stores per-cluster extraction stats of one unit in a single transaction.
func (rs *RunStoreImpl) RecordClusterSummaries(runID int64, rows []schema.ClusterSummaryRecord) error {
	if rs.db == nil || len(rows) == 0 {
		return nil
	}

	quotedTableName := quoteTableName(clusterSummariesTable, rs.backend)
	query := rs.db.Rebind(fmt.Sprintf(`INSERT INTO %s (run_id, recording, probe, cluster_id, spike_count, valid_draws, total_draws, peak_snr)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, quotedTableName))

	tx, err := rs.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Preparex(query)
	if err != nil {
		return fmt.Errorf("failed to prepare cluster summary insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rows {
		if _, err := stmt.Exec(runID, r.Recording, r.Probe, r.ClusterID, r.SpikeCount, r.ValidDraws, r.TotalDraws, r.PeakSNR); err != nil {
			return fmt.Errorf("failed to insert summary of cluster %d: %w", r.ClusterID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cluster summaries: %w", err)
	}
	return nil
}

// EndRun updates the run with completion data.
func (rs *RunStoreImpl) EndRun(runID int64, endTime time.Time, completed, skipped, failed int) error {
	if rs.db == nil {
		return nil
	}

	// First, get the start_time to calculate duration
	quotedTableName := quoteTableName(runsTable, rs.backend)
	var startTime dbTime
	query := rs.db.Rebind(fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = ?`, quotedTableName))
	if err := rs.db.Get(&startTime, query, runID); err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}

	durationMs := endTime.Sub(startTime.Time).Milliseconds()

	updateQuery := rs.db.Rebind(fmt.Sprintf(`UPDATE %s SET end_time = ?, run_duration_ms = ?,
		units_completed = ?, units_skipped = ?, units_failed = ? WHERE run_id = ?`, quotedTableName))
	if _, err := rs.db.Exec(updateQuery, formatTime(endTime, rs.backend), durationMs, completed, skipped, failed, runID); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (rs *RunStoreImpl) Close() error {
	if rs.db != nil {
		return rs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the run store.
func (rs *RunStoreImpl) GetStatus() (schema.RunStatus, error) {
	status := schema.RunStatus{
		Backend:      string(rs.backend),
		Connected:    rs.db != nil,
		UnitsByState: make(map[string]int),
		TableSizes:   make(map[string]int64),
	}
	if rs.db == nil {
		return status, nil
	}

	runs := quoteTableName(runsTable, rs.backend)
	if err := rs.db.Get(&status.TotalRuns, fmt.Sprintf("SELECT COUNT(*) FROM %s", runs)); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		var last struct {
			RunID     int64  `db:"run_id"`
			RunUUID   string `db:"run_uuid"`
			StartTime dbTime `db:"start_time"`
		}
		lastRunQuery := fmt.Sprintf("SELECT run_id, run_uuid, start_time FROM %s ORDER BY run_id DESC LIMIT 1", runs)
		if err := rs.db.Get(&last, lastRunQuery); err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}
		status.LastRunID = last.RunID
		status.LastRunUUID = last.RunUUID
		status.LastRunTime = last.StartTime.Time

		var oldest dbTime
		oldestRunQuery := fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id ASC LIMIT 1", runs)
		if err := rs.db.Get(&oldest, oldestRunQuery); err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}
		status.OldestRunTime = oldest.Time
	}

	var states []struct {
		State string `db:"state"`
		Count int    `db:"n"`
	}
	statesQuery := fmt.Sprintf("SELECT state, COUNT(*) AS n FROM %s GROUP BY state", quoteTableName(unitResultsTable, rs.backend))
	if err := rs.db.Select(&states, statesQuery); err != nil {
		return status, fmt.Errorf("failed to count unit results: %w", err)
	}
	for _, s := range states {
		status.UnitsByState[s.State] = s.Count
	}

	// Get table sizes
	for _, table := range runTables {
		var count int64
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(table, rs.backend))
		if err := rs.db.Get(&count, countQuery); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}
	status.TotalClusters = int(status.TableSizes[clusterSummariesTable])

	return status, nil
}

// runRow is the database shape of a RunRecord.
type runRow struct {
	RunID          int64          `db:"run_id"`
	RunUUID        string         `db:"run_uuid"`
	SessionName    string         `db:"session_name"`
	StartTime      dbTime         `db:"start_time"`
	EndTime        dbTime         `db:"end_time"`
	RunDurationMs  sql.NullInt64  `db:"run_duration_ms"`
	UnitsCompleted sql.NullInt32  `db:"units_completed"`
	UnitsSkipped   sql.NullInt32  `db:"units_skipped"`
	UnitsFailed    sql.NullInt32  `db:"units_failed"`
	ConfigParams   sql.NullString `db:"config_params"`
}

// unitResultRow is the database shape of a UnitResultRecord.
type unitResultRow struct {
	RunID        int64          `db:"run_id"`
	SessionName  string         `db:"session_name"`
	Recording    string         `db:"recording"`
	Probe        string         `db:"probe"`
	State        string         `db:"state"`
	Reason       sql.NullString `db:"reason"`
	ArtifactPath sql.NullString `db:"artifact_path"`
	Clusters     int32          `db:"clusters"`
	DurationMs   int64          `db:"duration_ms"`
}

// clusterSummaryRow is the database shape of a ClusterSummaryRecord.
type clusterSummaryRow struct {
	RunID      int64   `db:"run_id"`
	Recording  string  `db:"recording"`
	Probe      string  `db:"probe"`
	ClusterID  int32   `db:"cluster_id"`
	SpikeCount int32   `db:"spike_count"`
	ValidDraws int32   `db:"valid_draws"`
	TotalDraws int32   `db:"total_draws"`
	PeakSNR    float64 `db:"peak_snr"`
}

func nullPtr[T any](v T, valid bool) *T {
	if !valid {
		return nil
	}
	return &v
}

// GetAllRuns retrieves all runs from the store.
func (rs *RunStoreImpl) GetAllRuns() ([]schema.RunRecord, error) {
	if rs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, run_uuid, session_name, start_time, end_time, run_duration_ms,
		units_completed, units_skipped, units_failed, config_params FROM %s ORDER BY run_id`, quoteTableName(runsTable, rs.backend))

	var rows []runRow
	if err := rs.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	results := make([]schema.RunRecord, 0, len(rows))
	for _, r := range rows {
		results = append(results, schema.RunRecord{
			RunID:          r.RunID,
			RunUUID:        r.RunUUID,
			SessionName:    r.SessionName,
			StartTime:      r.StartTime.Time,
			EndTime:        r.EndTime.Ptr(),
			RunDurationMs:  nullPtr(r.RunDurationMs.Int64, r.RunDurationMs.Valid),
			UnitsCompleted: nullPtr(r.UnitsCompleted.Int32, r.UnitsCompleted.Valid),
			UnitsSkipped:   nullPtr(r.UnitsSkipped.Int32, r.UnitsSkipped.Valid),
			UnitsFailed:    nullPtr(r.UnitsFailed.Int32, r.UnitsFailed.Valid),
			ConfigParams:   nullPtr(r.ConfigParams.String, r.ConfigParams.Valid),
		})
	}
	return results, nil
}

// GetAllUnitResults retrieves all unit results from the store.
func (rs *RunStoreImpl) GetAllUnitResults() ([]schema.UnitResultRecord, error) {
	if rs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, session_name, recording, probe, state, reason, artifact_path, clusters, duration_ms
		FROM %s ORDER BY run_id, recording, probe`, quoteTableName(unitResultsTable, rs.backend))

	var rows []unitResultRow
	if err := rs.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query unit results: %w", err)
	}

	results := make([]schema.UnitResultRecord, 0, len(rows))
	for _, r := range rows {
		results = append(results, schema.UnitResultRecord{
			RunID:        r.RunID,
			SessionName:  r.SessionName,
			Recording:    r.Recording,
			Probe:        r.Probe,
			State:        r.State,
			Reason:       nullPtr(r.Reason.String, r.Reason.Valid),
			ArtifactPath: nullPtr(r.ArtifactPath.String, r.ArtifactPath.Valid),
			Clusters:     r.Clusters,
			DurationMs:   r.DurationMs,
		})
	}
	return results, nil
}

// GetAllClusterSummaries retrieves all cluster summaries from the store.
func (rs *RunStoreImpl) GetAllClusterSummaries() ([]schema.ClusterSummaryRecord, error) {
	if rs.db == nil {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT run_id, recording, probe, cluster_id, spike_count, valid_draws, total_draws, peak_snr
		FROM %s ORDER BY run_id, recording, probe, cluster_id`, quoteTableName(clusterSummariesTable, rs.backend))

	var rows []clusterSummaryRow
	if err := rs.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to query cluster summaries: %w", err)
	}

	results := make([]schema.ClusterSummaryRecord, 0, len(rows))
	for _, r := range rows {
		results = append(results, schema.ClusterSummaryRecord(r))
	}
	return results, nil
}
