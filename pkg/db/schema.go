package db

// Schema defines the SQLite database schema for build runs. Each pipeline
// run is one row, keyed by a generated run key, with indexes for the
// listing queries.
const Schema = `
CREATE TABLE IF NOT EXISTS builds (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_key TEXT NOT NULL UNIQUE,
    source_iso TEXT NOT NULL,
    output_iso TEXT NOT NULL,
    sha256 TEXT,
    status TEXT NOT NULL CHECK(status IN ('pending', 'staging', 'building', 'built', 'flashed', 'declined', 'failed')),
    device_path TEXT,
    bytes_written INTEGER,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_builds_run_key ON builds(run_key);
CREATE INDEX IF NOT EXISTS idx_builds_status ON builds(status);
CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at);
`

// Status constants
const (
	StatusPending  = "pending"
	StatusStaging  = "staging"
	StatusBuilding = "building"
	StatusBuilt    = "built"
	StatusFlashed  = "flashed"
	StatusDeclined = "declined"
	StatusFailed   = "failed"
)

// Build represents one pipeline run
type Build struct {
	ID           int64
	RunKey       string
	SourceISO    string
	OutputISO    string
	SHA256       string
	Status       string
	DevicePath   string
	BytesWritten int64
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
