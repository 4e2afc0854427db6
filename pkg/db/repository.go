package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/flintwinters/custom-debian-iso-builder/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for build runs
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new build record
func (r *Repository) Create(b *Build) error {
	slog.Info("database_create_build", "run_key", b.RunKey, "status", b.Status)

	query := `
		INSERT INTO builds (run_key, source_iso, output_iso, sha256, status, device_path, bytes_written, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		b.RunKey, b.SourceISO, b.OutputISO, b.SHA256,
		b.Status, b.DevicePath, b.BytesWritten, b.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "run_key", b.RunKey, "error", err)
		return errors.Wrap(err, "failed to insert build")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	b.ID = id

	slog.Info("database_build_created", "run_key", b.RunKey, "build_id", b.ID)
	return nil
}

// GetByRunKey retrieves a build by its run key. Returns nil when absent.
func (r *Repository) GetByRunKey(runKey string) (*Build, error) {
	query := `
		SELECT id, run_key, source_iso, output_iso, sha256, status,
		       device_path, bytes_written, error_message, created_at, updated_at
		FROM builds WHERE run_key = ?
	`
	var b Build
	var sha256, devicePath, errorMessage sql.NullString
	var bytesWritten sql.NullInt64

	err := r.db.QueryRow(query, runKey).Scan(
		&b.ID, &b.RunKey, &b.SourceISO, &b.OutputISO, &sha256, &b.Status,
		&devicePath, &bytesWritten, &errorMessage,
		&b.CreatedAt, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "run_key", runKey, "error", err)
		return nil, errors.Wrap(err, "failed to query build")
	}

	b.SHA256 = sha256.String
	b.DevicePath = devicePath.String
	b.BytesWritten = bytesWritten.Int64
	b.ErrorMessage = errorMessage.String

	return &b, nil
}

// Update updates an existing build record
func (r *Repository) Update(b *Build) error {
	slog.Info("database_update_build", "build_id", b.ID, "status", b.Status)

	query := `
		UPDATE builds
		SET sha256 = ?, status = ?, device_path = ?, bytes_written = ?,
		    error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		b.SHA256, b.Status, b.DevicePath, b.BytesWritten, b.ErrorMessage, b.ID)
	if err != nil {
		slog.Error("database_update_failed", "build_id", b.ID, "error", err)
		return errors.Wrap(err, "failed to update build")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("build not found: id=%d", b.ID)
	}

	return nil
}

// UpdateStatus updates only the status and error message fields
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "build_id", id, "status", status)

	query := `UPDATE builds SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	if _, err := r.db.Exec(query, status, errorMessage, id); err != nil {
		slog.Error("database_status_update_failed", "build_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}

	return nil
}

// List retrieves all builds, newest first
func (r *Repository) List() ([]*Build, error) {
	query := `
		SELECT id, run_key, source_iso, output_iso, sha256, status,
		       device_path, bytes_written, error_message, created_at, updated_at
		FROM builds ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list builds")
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		var b Build
		var sha256, devicePath, errorMessage sql.NullString
		var bytesWritten sql.NullInt64

		err := rows.Scan(
			&b.ID, &b.RunKey, &b.SourceISO, &b.OutputISO, &sha256, &b.Status,
			&devicePath, &bytesWritten, &errorMessage,
			&b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}

		b.SHA256 = sha256.String
		b.DevicePath = devicePath.String
		b.BytesWritten = bytesWritten.Int64
		b.ErrorMessage = errorMessage.String

		builds = append(builds, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration failed")
	}

	return builds, nil
}
