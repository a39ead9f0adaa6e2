package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"xprobe/internal/storage"
	"xprobe/internal/storage/models"
	pkgerrors "xprobe/pkg/errors"
)

// dbHandle is the common interface between *sql.DB and *sql.Tx.
type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB implements the Storage interface using SQLite
type DB struct {
	db *sql.DB
}

// New creates a new SQLite storage instance
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	storage := &DB{db: db}

	if err := runMigrations(storage); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) handle() dbHandle { return d.db }

// BeginTx starts a new transaction
func (d *DB) BeginTx(ctx context.Context) (storage.Transaction, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx implements the Transaction interface
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error    { return t.tx.Commit() }
func (t *Tx) Rollback() error  { return t.tx.Rollback() }
func (t *Tx) handle() dbHandle { return t.tx }

func (t *Tx) BeginTx(ctx context.Context) (storage.Transaction, error) {
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *Tx) Close() error { return nil }

// ─── Probe history ──────────────────────────────────────────────────────────

func (d *DB) RecordProbe(ctx context.Context, result *models.ProbeResult) error {
	return recordProbe(ctx, d.handle(), result)
}
func (t *Tx) RecordProbe(ctx context.Context, result *models.ProbeResult) error {
	return recordProbe(ctx, t.handle(), result)
}

func recordProbe(ctx context.Context, h dbHandle, result *models.ProbeResult) error {
	if result.TestedAt.IsZero() {
		result.TestedAt = time.Now()
	}
	query := `
		INSERT INTO probe_results (latency_ms, success, error_message, strategy, duration_ms, tested_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := h.ExecContext(ctx, query,
		result.LatencyMS, result.Success, result.ErrorMessage, result.Strategy, result.DurationMS, result.TestedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record probe: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	result.ID = id
	return nil
}

const probeColumns = `id, latency_ms, success, error_message, strategy, duration_ms, tested_at`

func scanProbe(scan func(dest ...interface{}) error) (*models.ProbeResult, error) {
	result := &models.ProbeResult{}
	err := scan(
		&result.ID, &result.LatencyMS, &result.Success, &result.ErrorMessage,
		&result.Strategy, &result.DurationMS, &result.TestedAt,
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DB) GetLatestProbe(ctx context.Context) (*models.ProbeResult, error) {
	return getLatestProbe(ctx, d.handle())
}
func (t *Tx) GetLatestProbe(ctx context.Context) (*models.ProbeResult, error) {
	return getLatestProbe(ctx, t.handle())
}

func getLatestProbe(ctx context.Context, h dbHandle) (*models.ProbeResult, error) {
	query := `SELECT ` + probeColumns + ` FROM probe_results ORDER BY tested_at DESC, id DESC LIMIT 1`
	result, err := scanProbe(h.QueryRowContext(ctx, query).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DB) GetProbeHistory(ctx context.Context, limit int) ([]*models.ProbeResult, error) {
	return getProbeHistory(ctx, d.handle(), limit)
}
func (t *Tx) GetProbeHistory(ctx context.Context, limit int) ([]*models.ProbeResult, error) {
	return getProbeHistory(ctx, t.handle(), limit)
}

func getProbeHistory(ctx context.Context, h dbHandle, limit int) ([]*models.ProbeResult, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	query := `SELECT ` + probeColumns + ` FROM probe_results ORDER BY tested_at DESC, id DESC LIMIT ?`
	rows, err := h.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.ProbeResult
	for rows.Next() {
		result, err := scanProbe(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

func (d *DB) PruneProbeHistory(ctx context.Context, keep int) (int64, error) {
	return pruneProbeHistory(ctx, d.handle(), keep)
}
func (t *Tx) PruneProbeHistory(ctx context.Context, keep int) (int64, error) {
	return pruneProbeHistory(ctx, t.handle(), keep)
}

// pruneProbeHistory keeps the newest keep rows.
func pruneProbeHistory(ctx context.Context, h dbHandle, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	query := `
		DELETE FROM probe_results WHERE id NOT IN (
			SELECT id FROM probe_results ORDER BY tested_at DESC, id DESC LIMIT ?
		)
	`
	res, err := h.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune probe history: %w", err)
	}
	return res.RowsAffected()
}

// ─── Settings operations ────────────────────────────────────────────────────

func (d *DB) GetSetting(ctx context.Context, key string) (string, error) {
	return getSetting(ctx, d.handle(), key)
}
func (t *Tx) GetSetting(ctx context.Context, key string) (string, error) {
	return getSetting(ctx, t.handle(), key)
}

func getSetting(ctx context.Context, h dbHandle, key string) (string, error) {
	var value string
	err := h.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: %s", pkgerrors.ErrSettingNotFound, key)
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, d.handle(), key, value)
}
func (t *Tx) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, t.handle(), key, value)
}

func setSetting(ctx context.Context, h dbHandle, key, value string) error {
	query := `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	_, err := h.ExecContext(ctx, query, key, value)
	return err
}

func (d *DB) DeleteSetting(ctx context.Context, key string) error {
	return deleteSetting(ctx, d.handle(), key)
}
func (t *Tx) DeleteSetting(ctx context.Context, key string) error {
	return deleteSetting(ctx, t.handle(), key)
}

func deleteSetting(ctx context.Context, h dbHandle, key string) error {
	_, err := h.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key)
	return err
}

func (d *DB) GetAllSettings(ctx context.Context) (map[string]string, error) {
	return getAllSettings(ctx, d.handle())
}
func (t *Tx) GetAllSettings(ctx context.Context) (map[string]string, error) {
	return getAllSettings(ctx, t.handle())
}

func getAllSettings(ctx context.Context, h dbHandle) (map[string]string, error) {
	rows, err := h.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// ─── Active connection operations ───────────────────────────────────────────

func (d *DB) SetActiveConnection(ctx context.Context, conn *models.ActiveConnection) error {
	return setActiveConnection(ctx, d.handle(), conn)
}
func (t *Tx) SetActiveConnection(ctx context.Context, conn *models.ActiveConnection) error {
	return setActiveConnection(ctx, t.handle(), conn)
}

func setActiveConnection(ctx context.Context, h dbHandle, conn *models.ActiveConnection) error {
	query := `
		INSERT INTO active_connection (id, core_type, name, socks_port, api_port, started_at)
		VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			core_type = excluded.core_type,
			name = excluded.name,
			socks_port = excluded.socks_port,
			api_port = excluded.api_port,
			started_at = excluded.started_at
	`
	_, err := h.ExecContext(ctx, query, conn.CoreType, conn.Name, conn.SOCKSPort, conn.APIPort)
	return err
}

func (d *DB) GetActiveConnection(ctx context.Context) (*models.ActiveConnection, error) {
	return getActiveConnection(ctx, d.handle())
}
func (t *Tx) GetActiveConnection(ctx context.Context) (*models.ActiveConnection, error) {
	return getActiveConnection(ctx, t.handle())
}

func getActiveConnection(ctx context.Context, h dbHandle) (*models.ActiveConnection, error) {
	query := `SELECT id, core_type, name, socks_port, api_port, started_at FROM active_connection WHERE id = 1`
	conn := &models.ActiveConnection{}
	err := h.QueryRowContext(ctx, query).Scan(
		&conn.ID, &conn.CoreType, &conn.Name, &conn.SOCKSPort, &conn.APIPort, &conn.StartedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (d *DB) ClearActiveConnection(ctx context.Context) error {
	return clearActiveConnection(ctx, d.handle())
}
func (t *Tx) ClearActiveConnection(ctx context.Context) error {
	return clearActiveConnection(ctx, t.handle())
}

func clearActiveConnection(ctx context.Context, h dbHandle) error {
	_, err := h.ExecContext(ctx, "DELETE FROM active_connection WHERE id = 1")
	return err
}
