package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/tenderline-labs/tenderline/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/tenderline-labs/tenderline/internal/core/domain"
	"github.com/tenderline-labs/tenderline/internal/core/ports/driven"
)

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// Store is a unified SQLite-based storage that provides access to
// the record and source-config store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.tenderline/data/tenderline.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".tenderline", "data")
	}

	// Ensure directory exists
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tenderline.db")

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:   db,
		path: dbPath,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RecordStore returns a RecordStore interface backed by this store.
func (s *Store) RecordStore() driven.RecordStore {
	return &recordStore{store: s}
}

// SourceConfigStore returns a SourceConfigStore interface backed by this store.
func (s *Store) SourceConfigStore() driven.SourceConfigStore {
	return &sourceConfigStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Record Store ====================

// recordStore implements driven.RecordStore.
type recordStore struct {
	store *Store
}

var _ driven.RecordStore = (*recordStore)(nil)

const recordColumns = `source_id, external_id, type, title, description, agency,
	classification, value, currency, url, posted_at, close_at, urgent,
	attributes, score, prior_count, related_keys, ingested_at`

// Upsert inserts or updates one record, keyed by (source_id, external_id).
func (r *recordStore) Upsert(ctx context.Context, record *domain.NormalizedRecord) (int64, error) {
	if err := record.Key.Validate(); err != nil {
		return 0, err
	}

	attributesJSON, err := json.Marshal(record.Attributes)
	if err != nil {
		return 0, fmt.Errorf("marshalling attributes: %w", err)
	}
	relatedJSON, err := json.Marshal(record.RelatedKeys)
	if err != nil {
		return 0, fmt.Errorf("marshalling related keys: %w", err)
	}

	row := r.store.db.QueryRowContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, external_id) DO UPDATE SET
			type = excluded.type,
			title = excluded.title,
			description = excluded.description,
			agency = excluded.agency,
			classification = excluded.classification,
			value = excluded.value,
			currency = excluded.currency,
			url = excluded.url,
			posted_at = excluded.posted_at,
			close_at = excluded.close_at,
			urgent = excluded.urgent,
			attributes = excluded.attributes,
			score = excluded.score,
			prior_count = excluded.prior_count,
			related_keys = excluded.related_keys,
			ingested_at = excluded.ingested_at
		RETURNING id
	`, record.Key.SourceID, record.Key.ExternalID, string(record.Type),
		record.Title, record.Description, record.Agency, record.Classification,
		record.Value, record.Currency, record.URL,
		nullTime(record.PostedAt), nullTime(record.CloseAt), record.Urgent,
		string(attributesJSON), record.Score, record.PriorCount,
		string(relatedJSON), nullTime(record.IngestedAt))

	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("upserting record: %w", err)
	}
	return id, nil
}

// Get retrieves one record by its dedup key.
func (r *recordStore) Get(ctx context.Context, key domain.RecordKey) (*domain.NormalizedRecord, error) {
	row := r.store.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM records WHERE source_id = ? AND external_id = ?
	`, key.SourceID, key.ExternalID)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

// Query returns the records matching a filter, oldest first.
func (r *recordStore) Query(ctx context.Context, filter driven.RecordFilter) ([]domain.NormalizedRecord, error) {
	where, args := filterClause(filter)
	query := `SELECT ` + recordColumns + ` FROM records` + where + ` ORDER BY id`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []domain.NormalizedRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// Count reports how many records match a filter. Limit is ignored.
func (r *recordStore) Count(ctx context.Context, filter driven.RecordFilter) (int, error) {
	where, args := filterClause(filter)

	var count int
	row := r.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records"+where, args...)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return count, nil
}

// filterClause builds the WHERE clause for a record filter.
func filterClause(filter driven.RecordFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.SourceID != "" {
		conditions = append(conditions, "source_id = ?")
		args = append(args, filter.SourceID)
	}
	if filter.Type != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(filter.Type))
	}
	if filter.Agency != "" {
		conditions = append(conditions, "agency = ?")
		args = append(args, filter.Agency)
	}
	if filter.Classification != "" {
		conditions = append(conditions, "classification = ?")
		args = append(args, filter.Classification)
	}
	if len(filter.Keys) > 0 {
		pairs := make([]string, len(filter.Keys))
		for i, key := range filter.Keys {
			pairs[i] = "(source_id = ? AND external_id = ?)"
			args = append(args, key.SourceID, key.ExternalID)
		}
		conditions = append(conditions, "("+strings.Join(pairs, " OR ")+")")
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// rowScanner abstracts sql.Row and sql.Rows for scanRecord.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.NormalizedRecord, error) {
	var record domain.NormalizedRecord
	var recordType, attributesJSON, relatedJSON string
	var postedAt, closeAt, ingestedAt sql.NullTime

	if err := row.Scan(&record.Key.SourceID, &record.Key.ExternalID, &recordType,
		&record.Title, &record.Description, &record.Agency, &record.Classification,
		&record.Value, &record.Currency, &record.URL,
		&postedAt, &closeAt, &record.Urgent,
		&attributesJSON, &record.Score, &record.PriorCount,
		&relatedJSON, &ingestedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	record.Type = domain.RecordType(recordType)
	if attributesJSON != jsonNull {
		if err := json.Unmarshal([]byte(attributesJSON), &record.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshaling attributes: %w", err)
		}
	}
	if relatedJSON != jsonNull {
		if err := json.Unmarshal([]byte(relatedJSON), &record.RelatedKeys); err != nil {
			return nil, fmt.Errorf("unmarshaling related keys: %w", err)
		}
	}
	if postedAt.Valid {
		record.PostedAt = postedAt.Time
	}
	if closeAt.Valid {
		record.CloseAt = closeAt.Time
	}
	if ingestedAt.Valid {
		record.IngestedAt = ingestedAt.Time
	}
	return &record, nil
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// ==================== Source Config Store ====================

// sourceConfigStore implements driven.SourceConfigStore.
type sourceConfigStore struct {
	store *Store
}

var _ driven.SourceConfigStore = (*sourceConfigStore)(nil)

const sourceConfigColumns = `id, name, type, base_url, auth_mode,
	quota_hourly, quota_burst, poll_interval_ns,
	retry_max, retry_base_ns, retry_max_ns,
	fast_lane, enabled, options, created_at, updated_at`

// Save stores or updates a source config.
func (s *sourceConfigStore) Save(ctx context.Context, cfg domain.SourceConfig) error {
	optionsJSON, err := json.Marshal(cfg.Options)
	if err != nil {
		return fmt.Errorf("marshalling options: %w", err)
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO source_configs (`+sourceConfigColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			base_url = excluded.base_url,
			auth_mode = excluded.auth_mode,
			quota_hourly = excluded.quota_hourly,
			quota_burst = excluded.quota_burst,
			poll_interval_ns = excluded.poll_interval_ns,
			retry_max = excluded.retry_max,
			retry_base_ns = excluded.retry_base_ns,
			retry_max_ns = excluded.retry_max_ns,
			fast_lane = excluded.fast_lane,
			enabled = excluded.enabled,
			options = excluded.options,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, cfg.ID, cfg.Name, cfg.Type, cfg.BaseURL, string(cfg.AuthMode),
		cfg.Quota.RequestsPerHour, cfg.Quota.Burst, int64(cfg.PollInterval),
		cfg.Retry.MaxRetries, int64(cfg.Retry.BaseDelay), int64(cfg.Retry.MaxDelay),
		cfg.FastLane, cfg.Enabled, string(optionsJSON),
		nullTime(cfg.CreatedAt), nullTime(cfg.UpdatedAt))

	if err != nil {
		return fmt.Errorf("saving source config: %w", err)
	}
	return nil
}

// Get retrieves a source config by ID.
func (s *sourceConfigStore) Get(ctx context.Context, id string) (*domain.SourceConfig, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT `+sourceConfigColumns+` FROM source_configs WHERE id = ?
	`, id)

	cfg, err := scanSourceConfig(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return cfg, nil
}

// List returns all stored source configs ordered by id.
func (s *sourceConfigStore) List(ctx context.Context) ([]domain.SourceConfig, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT `+sourceConfigColumns+` FROM source_configs ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying source configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.SourceConfig
	for rows.Next() {
		cfg, err := scanSourceConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// Delete removes a source config.
func (s *sourceConfigStore) Delete(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM source_configs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting source config: %w", err)
	}
	return nil
}

func scanSourceConfig(row rowScanner) (*domain.SourceConfig, error) {
	var cfg domain.SourceConfig
	var authMode, optionsJSON string
	var pollInterval, retryBase, retryMax int64
	var createdAt, updatedAt sql.NullTime

	if err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Type, &cfg.BaseURL, &authMode,
		&cfg.Quota.RequestsPerHour, &cfg.Quota.Burst, &pollInterval,
		&cfg.Retry.MaxRetries, &retryBase, &retryMax,
		&cfg.FastLane, &cfg.Enabled, &optionsJSON,
		&createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning source config: %w", err)
	}

	cfg.AuthMode = domain.AuthMode(authMode)
	cfg.PollInterval = time.Duration(pollInterval)
	cfg.Retry.BaseDelay = time.Duration(retryBase)
	cfg.Retry.MaxDelay = time.Duration(retryMax)
	if optionsJSON != jsonNull {
		if err := json.Unmarshal([]byte(optionsJSON), &cfg.Options); err != nil {
			return nil, fmt.Errorf("unmarshaling options: %w", err)
		}
	}
	if createdAt.Valid {
		cfg.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		cfg.UpdatedAt = updatedAt.Time
	}
	return &cfg, nil
}
