package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"event-coordinator/internal/domain"
)

// SQLiteClient stores conversation records in a local SQLite database. It is
// used by the operator CLI and for single-node deployments.
type SQLiteClient struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path and applies pending
// migrations. WAL mode is enabled for concurrent reads.
func OpenSQLite(path string) (*SQLiteClient, error) {
	if path == "" {
		return nil, errors.New("repository: sqlite path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("repository: create db directory: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repository: open database: %w", err)
	}
	// modernc sqlite serialises writers; a single connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("repository: enable WAL mode: %w", err)
	}
	c := &SQLiteClient{conn: conn, path: path}
	if err := c.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database connection.
func (c *SQLiteClient) Close() error {
	return c.conn.Close()
}

// Path returns the path to the database file.
func (c *SQLiteClient) Path() string {
	return c.path
}

func (c *SQLiteClient) migrate() error {
	_, err := c.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("repository: create schema_version table: %w", err)
	}

	var current int
	if err := c.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("repository: get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Records},
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := c.conn.Begin()
		if err != nil {
			return fmt.Errorf("repository: begin transaction: %w", err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("repository: apply migration v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("repository: record migration v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("repository: commit migration v%d: %w", m.version, err)
		}
	}
	return nil
}

const migrationV1Records = `
CREATE TABLE IF NOT EXISTS conversation_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id INTEGER,
	title TEXT NOT NULL,
	agent_type TEXT NOT NULL,
	state TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_records_tenant ON conversation_records(tenant_id);
`

func (c *SQLiteClient) CreateRecord(ctx context.Context, rec domain.Record) (int64, error) {
	res, err := c.conn.ExecContext(ctx, `
		INSERT INTO conversation_records (tenant_id, title, agent_type, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nullTenant(rec.TenantID), rec.Title, rec.AgentType, string(rec.State), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
	if err != nil {
		return 0, fmt.Errorf("repository: CreateRecord: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("repository: CreateRecord last insert id: %w", err)
	}
	return id, nil
}

func (c *SQLiteClient) GetRecord(ctx context.Context, id int64) (domain.Record, bool, error) {
	row := c.conn.QueryRowContext(ctx, `
		SELECT id, tenant_id, title, agent_type, state, created_at, updated_at
		FROM conversation_records WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, false, nil
	}
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("repository: GetRecord: %w", err)
	}
	return rec, true, nil
}

func (c *SQLiteClient) UpdateRecord(ctx context.Context, rec domain.Record) error {
	res, err := c.conn.ExecContext(ctx, `
		UPDATE conversation_records
		SET tenant_id = ?, title = ?, agent_type = ?, state = ?, updated_at = ?
		WHERE id = ?
	`, nullTenant(rec.TenantID), rec.Title, rec.AgentType, string(rec.State), formatTime(rec.UpdatedAt), rec.ID)
	if err != nil {
		return fmt.Errorf("repository: UpdateRecord: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: UpdateRecord rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("repository: UpdateRecord: record %d not found", rec.ID)
	}
	return nil
}

func (c *SQLiteClient) DeleteRecord(ctx context.Context, id int64) error {
	if _, err := c.conn.ExecContext(ctx, "DELETE FROM conversation_records WHERE id = ?", id); err != nil {
		return fmt.Errorf("repository: DeleteRecord: %w", err)
	}
	return nil
}

func (c *SQLiteClient) ListRecords(ctx context.Context, tenantID *int64) ([]domain.Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if tenantID != nil {
		rows, err = c.conn.QueryContext(ctx, `
			SELECT id, tenant_id, title, agent_type, state, created_at, updated_at
			FROM conversation_records WHERE tenant_id = ? ORDER BY id
		`, *tenantID)
	} else {
		rows, err = c.conn.QueryContext(ctx, `
			SELECT id, tenant_id, title, agent_type, state, created_at, updated_at
			FROM conversation_records ORDER BY id
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: ListRecords: %w", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRecords scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: ListRecords: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.Record, error) {
	var (
		rec       domain.Record
		tenant    sql.NullInt64
		state     string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&rec.ID, &tenant, &rec.Title, &rec.AgentType, &state, &createdAt, &updatedAt); err != nil {
		return domain.Record{}, err
	}
	if tenant.Valid {
		v := tenant.Int64
		rec.TenantID = &v
	}
	rec.State = []byte(state)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return rec, nil
}

func nullTenant(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
