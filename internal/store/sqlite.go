package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS libraries (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	scan_interval INTEGER NOT NULL DEFAULT 3600,
	last_scan TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS queue (
	id TEXT PRIMARY KEY,
	library_id TEXT,
	file_path TEXT NOT NULL,
	file_size INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	progress INTEGER NOT NULL DEFAULT 0,
	fps REAL NOT NULL DEFAULT 0,
	eta TEXT NOT NULL DEFAULT '',
	added_at TEXT NOT NULL,
	started_at TEXT,
	finished_at TEXT,
	error_msg TEXT,
	original_size INTEGER NOT NULL DEFAULT 0,
	new_size INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS history (
	id TEXT PRIMARY KEY,
	library_id TEXT,
	file_path TEXT NOT NULL,
	original_size INTEGER NOT NULL DEFAULT 0,
	new_size INTEGER NOT NULL DEFAULT 0,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_msg TEXT,
	finished_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON queue(status);
CREATE INDEX IF NOT EXISTS idx_queue_added_at ON queue(added_at);
CREATE INDEX IF NOT EXISTS idx_queue_file_path ON queue(file_path);
CREATE INDEX IF NOT EXISTS idx_history_file_path ON history(file_path);
CREATE INDEX IF NOT EXISTS idx_history_finished_at ON history(finished_at);
`

// SQLiteStore implements Store on top of a single modernc.org/sqlite
// database file. Every exported method takes the mutex only for the
// duration of its own query/exec — none hold it across an external
// process call.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the database at path, ensuring its schema exists.
func Open(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create db directory: %v", ErrStoreUnavailable, err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStoreUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", ErrStoreUnavailable, err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: insert schema version: %v", ErrStoreUnavailable, err)
		}
		if _, err := db.Exec(`INSERT OR IGNORE INTO settings (key, value) VALUES
			('max_workers', '1'),
			('language', 'en'),
			('conversion_profile', 'nvenc_max'),
			('audio_codec', 'copy')`); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: seed settings: %v", ErrStoreUnavailable, err)
		}
	} else if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: check schema version: %v", ErrStoreUnavailable, err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// -- helpers -----------------------------------------------------------

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullStringPtr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// -- libraries -----------------------------------------------------------

func (s *SQLiteStore) CreateLibrary(lib *Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lib.CreatedAt.IsZero() {
		lib.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO libraries (id, name, path, enabled, scan_interval, last_scan, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lib.ID, lib.Name, lib.Path, boolToInt(lib.Enabled), lib.ScanInterval,
		formatTimePtr(lib.LastScan), formatTime(lib.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: create library: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func scanLibraryRow(row interface{ Scan(...any) error }) (*Library, error) {
	var lib Library
	var enabled int
	var lastScan, createdAt sql.NullString
	if err := row.Scan(&lib.ID, &lib.Name, &lib.Path, &enabled, &lib.ScanInterval, &lastScan, &createdAt); err != nil {
		return nil, err
	}
	lib.Enabled = enabled != 0
	lib.LastScan = parseTimePtr(lastScan)
	if createdAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, createdAt.String); err == nil {
			lib.CreatedAt = t
		}
	}
	return &lib, nil
}

const librarySelect = `SELECT id, name, path, enabled, scan_interval, last_scan, created_at FROM libraries`

func (s *SQLiteStore) GetLibrary(id string) (*Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(librarySelect+` WHERE id = ?`, id)
	lib, err := scanLibraryRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get library: %v", ErrStoreUnavailable, err)
	}
	return lib, nil
}

func (s *SQLiteStore) listLibraries(where string) ([]*Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(librarySelect + where + ` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: list libraries: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*Library
	for rows.Next() {
		lib, err := scanLibraryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan library: %v", ErrStoreUnavailable, err)
		}
		out = append(out, lib)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListLibraries() ([]*Library, error) {
	return s.listLibraries("")
}

func (s *SQLiteStore) ListEnabledLibraries() ([]*Library, error) {
	return s.listLibraries(" WHERE enabled = 1")
}

func (s *SQLiteStore) UpdateLibrary(lib *Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE libraries SET name=?, path=?, enabled=?, scan_interval=? WHERE id=?`,
		lib.Name, lib.Path, boolToInt(lib.Enabled), lib.ScanInterval, lib.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: update library: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteLibrary removes a library row only. Queue and history rows keyed by
// this library_id are intentionally left in place — see DESIGN.md, Open
// Question: library deletion does not cascade.
func (s *SQLiteStore) DeleteLibrary(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM libraries WHERE id=?`, id); err != nil {
		return fmt.Errorf("%w: delete library: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) TouchLastScan(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`UPDATE libraries SET last_scan=? WHERE id=?`, formatTime(at), id); err != nil {
		return fmt.Errorf("%w: touch last_scan: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// -- queue -----------------------------------------------------------

const queueSelect = `SELECT id, library_id, file_path, file_size, status, progress, fps, eta,
	added_at, started_at, finished_at, error_msg, original_size, new_size FROM queue`

func scanQueueRow(row interface{ Scan(...any) error }) (*QueueJob, error) {
	var j QueueJob
	var libraryID, startedAt, finishedAt, errorMsg sql.NullString
	var addedAt string
	if err := row.Scan(
		&j.ID, &libraryID, &j.FilePath, &j.FileSize, &j.Status, &j.Progress, &j.FPS, &j.ETA,
		&addedAt, &startedAt, &finishedAt, &errorMsg, &j.OriginalSize, &j.NewSize,
	); err != nil {
		return nil, err
	}
	j.LibraryID = stringPtrFromNull(libraryID)
	j.ErrorMsg = stringPtrFromNull(errorMsg)
	j.StartedAt = parseTimePtr(startedAt)
	j.FinishedAt = parseTimePtr(finishedAt)
	if t, err := time.Parse(time.RFC3339Nano, addedAt); err == nil {
		j.AddedAt = t
	}
	return &j, nil
}

func (s *SQLiteStore) EnqueueJob(job *QueueJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.AddedAt.IsZero() {
		job.AddedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = QueuePending
	}
	_, err := s.db.Exec(
		`INSERT INTO queue (id, library_id, file_path, file_size, status, progress, fps, eta, added_at)
		 VALUES (?, ?, ?, ?, ?, 0, 0, '', ?)`,
		job.ID, nullStringPtr(job.LibraryID), job.FilePath, job.FileSize, string(job.Status), formatTime(job.AddedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: enqueue job: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) GetQueueJob(id string) (*QueueJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(queueSelect+` WHERE id=?`, id)
	j, err := scanQueueRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get queue job: %v", ErrStoreUnavailable, err)
	}
	return j, nil
}

func (s *SQLiteStore) HasActiveJobForPath(path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM queue WHERE file_path=? AND status IN ('pending','processing')`, path,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: check active job: %v", ErrStoreUnavailable, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) HasSuccessfulHistoryForPath(path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM history WHERE file_path=? AND status='success'`, path,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("%w: check history: %v", ErrStoreUnavailable, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) ListQueueJobs(status QueueStatus) ([]*QueueJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.Query(queueSelect + ` WHERE status IN ('pending','processing','error') ORDER BY status DESC, added_at ASC LIMIT 200`)
	} else {
		rows, err = s.db.Query(queueSelect+` WHERE status=? ORDER BY added_at DESC LIMIT 100`, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list queue jobs: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*QueueJob
	for rows.Next() {
		j, err := scanQueueRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan queue job: %v", ErrStoreUnavailable, err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// OldestPendingExcluding returns the oldest pending job whose id is not in
// excludeIDs, or nil if none qualify. excludeIDs is the worker pool's
// current Active Job Slots snapshot.
func (s *SQLiteStore) OldestPendingExcluding(excludeIDs []string) (*QueueJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := queueSelect + ` WHERE status='pending'`
	args := make([]any, 0, len(excludeIDs))
	if len(excludeIDs) > 0 {
		placeholders := ""
		for i, id := range excludeIDs {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		query += ` AND id NOT IN (` + placeholders + `)`
	}
	query += ` ORDER BY added_at ASC LIMIT 1`

	row := s.db.QueryRow(query, args...)
	j, err := scanQueueRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select oldest pending: %v", ErrStoreUnavailable, err)
	}
	return j, nil
}

func (s *SQLiteStore) MarkProcessing(id string, startedAt time.Time, originalSize int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE queue SET status='processing', started_at=?, original_size=? WHERE id=?`,
		formatTime(startedAt), originalSize, id,
	)
	if err != nil {
		return fmt.Errorf("%w: mark processing: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateProgress(id string, progress int, fps float64, eta string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE queue SET progress=?, fps=?, eta=? WHERE id=?`, progress, fps, eta, id)
	if err != nil {
		return fmt.Errorf("%w: update progress: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteQueueJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM queue WHERE id=?`, id); err != nil {
		return fmt.Errorf("%w: delete queue job: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// ResetProcessingJobs resets every processing row to pending, clearing
// progress/fps/eta/started_at, and returns the jobs as they were before the
// reset so the caller can clean up their temp artifacts.
func (s *SQLiteStore) ResetProcessingJobs() ([]*QueueJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(queueSelect + ` WHERE status='processing'`)
	if err != nil {
		return nil, fmt.Errorf("%w: list processing jobs: %v", ErrStoreUnavailable, err)
	}
	var stale []*QueueJob
	for rows.Next() {
		j, err := scanQueueRow(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan processing job: %v", ErrStoreUnavailable, err)
		}
		stale = append(stale, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate processing jobs: %v", ErrStoreUnavailable, err)
	}

	if _, err := s.db.Exec(
		`UPDATE queue SET status='pending', progress=0, fps=0, eta='', started_at=NULL WHERE status='processing'`,
	); err != nil {
		return nil, fmt.Errorf("%w: reset processing jobs: %v", ErrStoreUnavailable, err)
	}
	return stale, nil
}

// -- history -----------------------------------------------------------

func (s *SQLiteStore) AppendHistory(entry *HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.FinishedAt.IsZero() {
		entry.FinishedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO history (id, library_id, file_path, original_size, new_size, duration_seconds, status, error_msg, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, nullStringPtr(entry.LibraryID), entry.FilePath, entry.OriginalSize, entry.NewSize,
		entry.DurationSeconds, string(entry.Status), nullStringPtr(entry.ErrorMsg), formatTime(entry.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: append history: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func scanHistoryRow(row interface{ Scan(...any) error }, withLibraryName bool) (*HistoryEntry, error) {
	var h HistoryEntry
	var libraryID, errorMsg, libraryName sql.NullString
	var finishedAt string
	dest := []any{&h.ID, &libraryID, &h.FilePath, &h.OriginalSize, &h.NewSize,
		&h.DurationSeconds, &h.Status, &errorMsg, &finishedAt}
	if withLibraryName {
		dest = append(dest, &libraryName)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if v := stringPtrFromNull(libraryID); v != nil {
		h.LibraryID = v
	}
	h.ErrorMsg = stringPtrFromNull(errorMsg)
	if t, err := time.Parse(time.RFC3339Nano, finishedAt); err == nil {
		h.FinishedAt = t
	}
	if libraryName.Valid {
		h.LibraryName = libraryName.String
	}
	return &h, nil
}

const historyJoinSelect = `SELECT h.id, h.library_id, h.file_path, h.original_size, h.new_size,
	h.duration_seconds, h.status, h.error_msg, h.finished_at, l.name
	FROM history h LEFT JOIN libraries l ON h.library_id = l.id`

func (s *SQLiteStore) RecentSuccesses(limit int) ([]*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		historyJoinSelect+` WHERE h.status='success' ORDER BY h.finished_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: recent successes: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		h, err := scanHistoryRow(rows, true)
		if err != nil {
			return nil, fmt.Errorf("%w: scan history: %v", ErrStoreUnavailable, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListHistory(page, perPage int) ([]*HistoryEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}
	offset := (page - 1) * perPage

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: count history: %v", ErrStoreUnavailable, err)
	}

	rows, err := s.db.Query(
		historyJoinSelect+` ORDER BY h.finished_at DESC LIMIT ? OFFSET ?`, perPage, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: list history: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		h, err := scanHistoryRow(rows, true)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: scan history: %v", ErrStoreUnavailable, err)
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

func (s *SQLiteStore) SuccessfulHistory() ([]*HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(historyJoinSelect + ` WHERE h.status='success'`)
	if err != nil {
		return nil, fmt.Errorf("%w: successful history: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		h, err := scanHistoryRow(rows, true)
		if err != nil {
			return nil, fmt.Errorf("%w: scan history: %v", ErrStoreUnavailable, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM history`); err != nil {
		return fmt.Errorf("%w: clear history: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// -- settings -----------------------------------------------------------

func (s *SQLiteStore) GetSetting(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get setting: %v", ErrStoreUnavailable, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) SetSetting(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("%w: set setting: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) AllSettings() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("%w: list settings: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("%w: scan setting: %v", ErrStoreUnavailable, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// -- aggregates -----------------------------------------------------------

func (s *SQLiteStore) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Stats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queue WHERE status='pending'`).Scan(&st.Pending); err != nil {
		return st, fmt.Errorf("%w: count pending: %v", ErrStoreUnavailable, err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM queue WHERE status='processing'`).Scan(&st.Processing); err != nil {
		return st, fmt.Errorf("%w: count processing: %v", ErrStoreUnavailable, err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM history WHERE status='error'`).Scan(&st.TotalErrors); err != nil {
		return st, fmt.Errorf("%w: count errors: %v", ErrStoreUnavailable, err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM libraries WHERE enabled=1`).Scan(&st.ActiveLibraries); err != nil {
		return st, fmt.Errorf("%w: count active libraries: %v", ErrStoreUnavailable, err)
	}

	var saved sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(original_size-new_size) FROM history WHERE status='success'`).Scan(&saved); err != nil {
		return st, fmt.Errorf("%w: sum saved bytes: %v", ErrStoreUnavailable, err)
	}
	st.BytesSaved = saved.Int64

	todayStart := formatTime(time.Now().UTC().Truncate(24 * time.Hour))
	tomorrowStart := formatTime(time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour))
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM history WHERE status='success' AND finished_at >= ? AND finished_at < ?`,
		todayStart, tomorrowStart,
	).Scan(&st.SuccessesToday); err != nil {
		return st, fmt.Errorf("%w: count successes today: %v", ErrStoreUnavailable, err)
	}

	return st, nil
}

// Savings computes the totals, per-library and per-day breakdowns behind
// GET /api/savings, all derived from successful history rows.
func (s *SQLiteStore) Savings() (SavingsTotals, []LibrarySavings, []DailySavings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals SavingsTotals
	var original, newSize sql.NullInt64
	err := s.db.QueryRow(
		`SELECT COUNT(*), SUM(original_size), SUM(new_size) FROM history WHERE status='success'`,
	).Scan(&totals.TotalFiles, &original, &newSize)
	if err != nil {
		return totals, nil, nil, fmt.Errorf("%w: savings totals: %v", ErrStoreUnavailable, err)
	}
	totals.TotalOriginal = original.Int64
	totals.TotalNew = newSize.Int64
	totals.TotalSaved = totals.TotalOriginal - totals.TotalNew

	libRows, err := s.db.Query(`
		SELECT COALESCE(h.library_id, ''), COALESCE(l.name, 'onbekend'),
		       COUNT(*), SUM(h.original_size), SUM(h.new_size)
		FROM history h
		LEFT JOIN libraries l ON l.id = h.library_id
		WHERE h.status='success'
		GROUP BY h.library_id
		ORDER BY SUM(h.original_size-h.new_size) DESC
	`)
	if err != nil {
		return totals, nil, nil, fmt.Errorf("%w: savings by library: %v", ErrStoreUnavailable, err)
	}
	defer libRows.Close()

	var byLibrary []LibrarySavings
	for libRows.Next() {
		var ls LibrarySavings
		var orig, nsz sql.NullInt64
		if err := libRows.Scan(&ls.LibraryID, &ls.LibraryName, &ls.Files, &orig, &nsz); err != nil {
			return totals, nil, nil, fmt.Errorf("%w: scan library savings: %v", ErrStoreUnavailable, err)
		}
		ls.Original = orig.Int64
		ls.NewSize = nsz.Int64
		ls.Saved = ls.Original - ls.NewSize
		byLibrary = append(byLibrary, ls)
	}
	if err := libRows.Err(); err != nil {
		return totals, nil, nil, fmt.Errorf("%w: savings by library: %v", ErrStoreUnavailable, err)
	}

	dayRows, err := s.db.Query(`
		SELECT substr(finished_at, 1, 10) AS day, COUNT(*), SUM(original_size-new_size)
		FROM history
		WHERE status='success'
		GROUP BY day
		ORDER BY day DESC
		LIMIT 30
	`)
	if err != nil {
		return totals, byLibrary, nil, fmt.Errorf("%w: savings by day: %v", ErrStoreUnavailable, err)
	}
	defer dayRows.Close()

	var byDay []DailySavings
	for dayRows.Next() {
		var d DailySavings
		var saved sql.NullInt64
		if err := dayRows.Scan(&d.Day, &d.Files, &saved); err != nil {
			return totals, byLibrary, nil, fmt.Errorf("%w: scan day savings: %v", ErrStoreUnavailable, err)
		}
		d.Saved = saved.Int64
		byDay = append(byDay, d)
	}
	return totals, byLibrary, byDay, dayRows.Err()
}
