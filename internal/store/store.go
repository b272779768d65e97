package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/gtrans/internal"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Workers share the handle; SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS translation_memory (
		id TEXT PRIMARY KEY,
		source_text TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		final_text TEXT NOT NULL,
		service_used TEXT,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- runs records one batch invocation over a directory tree
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source_lang TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		source_root TEXT NOT NULL,
		output_root TEXT NOT NULL,
		extension TEXT,
		status TEXT DEFAULT 'running',
		translated INTEGER DEFAULT 0,
		cached INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	-- run_files stores the outcome of every file of a run, used for resume
	CREATE TABLE IF NOT EXISTS run_files (
		run_id TEXT NOT NULL,
		source_path TEXT NOT NULL,
		output_path TEXT,
		status TEXT NOT NULL,
		stage TEXT,
		error TEXT,
		service TEXT,
		latency_ms INTEGER,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, source_path),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_memory_pair ON translation_memory(source_lang, target_lang);
	CREATE INDEX IF NOT EXISTS idx_run_files_status ON run_files(run_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// MemoryKey identifies a translation memory entry. Whole files are keyed,
// so surrounding whitespace is significant and only NFC is applied.
func MemoryKey(sourceText, sourceLang, targetLang string) string {
	h := sha256.New()
	h.Write([]byte(sourceLang))
	h.Write([]byte{0})
	h.Write([]byte(targetLang))
	h.Write([]byte{0})
	h.Write([]byte(normalizeText(sourceText)))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store) GetCachedTranslation(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error) {
	id := MemoryKey(sourceText, sourceLang, targetLang)

	var finalText string
	var invalidated bool
	err := s.db.QueryRowContext(ctx,
		`SELECT final_text, invalidated FROM translation_memory WHERE id = ?`, id).Scan(&finalText, &invalidated)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if invalidated {
		return "", false, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE translation_memory SET usage_count = usage_count + 1, last_used = ? WHERE id = ?`,
		time.Now(), id)

	return finalText, true, err
}

func (s *Store) SaveToMemory(ctx context.Context, sourceText, sourceLang, targetLang, finalText, serviceUsed string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translation_memory (id, source_text, source_lang, target_lang, final_text, service_used, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		MemoryKey(sourceText, sourceLang, targetLang), normalizeText(sourceText), sourceLang, targetLang, finalText, serviceUsed, now, now)
	return err
}

// MemoryEntry is a row from the translation_memory table.
type MemoryEntry struct {
	ID          string
	SourceText  string
	SourceLang  string
	TargetLang  string
	FinalText   string
	ServiceUsed string
	UsageCount  int
	Invalidated bool
	LastUsed    time.Time
}

// CacheStats summarises translation memory usage.
type CacheStats struct {
	TotalEntries   int
	ActiveEntries  int
	InvalidEntries int
	TotalUsage     int
}

func (s *Store) InvalidateMemory(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE translation_memory SET invalidated = TRUE WHERE id = ?`, id)
}

// DeleteMemory permanently removes a translation memory entry by ID.
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM translation_memory WHERE id = ?`, id)
}

func (s *Store) execOne(ctx context.Context, query, id string) error {
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("memory entry not found: %s", id)
	}
	return nil
}

// ClearMemory removes all translation memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListMemory returns all translation memory entries ordered by most recently used.
func (s *Store) ListMemory(ctx context.Context) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_text, source_lang, target_lang, final_text, COALESCE(service_used, ''), usage_count, invalidated, last_used FROM translation_memory ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.SourceText, &e.SourceLang, &e.TargetLang, &e.FinalText, &e.ServiceUsed, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the translation memory.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM translation_memory`).Scan(
		&stats.TotalEntries,
		&stats.ActiveEntries,
		&stats.InvalidEntries,
		&stats.TotalUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Run is a row of the runs table.
type Run struct {
	ID         string
	SourceLang string
	TargetLang string
	SourceRoot string
	OutputRoot string
	Extension  string
	Status     string
	Translated int
	Cached     int
	Skipped    int
	Failed     int
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// RunCounts are the final tallies of a run.
type RunCounts struct {
	Translated int
	Cached     int
	Skipped    int
	Failed     int
}

// RunFile is the recorded outcome of one source file within a run.
type RunFile struct {
	SourcePath string
	OutputPath string
	Status     string
	Stage      string
	Error      string
	Service    string
	Latency    time.Duration
}

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// CreateRun records a new run for req.
func (s *Store) CreateRun(ctx context.Context, req internal.TranslationRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source_lang, target_lang, source_root, output_root, extension, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.SourceLang, req.TargetLang, req.SourceRoot, req.OutputRoot, req.Extension, RunRunning, req.Timestamp)
	return err
}

// ReopenRun marks a finished run as running again so it can be resumed.
func (s *Store) ReopenRun(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = NULL WHERE id = ?`, RunRunning, runID)
	return err
}

const runColumns = `id, source_lang, target_lang, source_root, output_root, COALESCE(extension, ''), status, translated, cached, skipped, failed, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.SourceLang, &r.TargetLang, &r.SourceRoot, &r.OutputRoot, &r.Extension,
		&r.Status, &r.Translated, &r.Cached, &r.Skipped, &r.Failed, &r.CreatedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// ListRuns returns the most recent runs first. A limit of 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// SaveRunFile persists the outcome of one file, replacing an earlier attempt.
func (s *Store) SaveRunFile(ctx context.Context, runID string, f RunFile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_files (run_id, source_path, output_path, status, stage, error, service, latency_ms, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, f.SourcePath, f.OutputPath, f.Status, f.Stage, f.Error, f.Service, f.Latency.Milliseconds(), time.Now())
	return err
}

// CompletedFiles returns the source paths a run has already produced output for.
func (s *Store) CompletedFiles(ctx context.Context, runID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_path FROM run_files WHERE run_id = ? AND status IN ('translated', 'cached')`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		done[path] = true
	}
	return done, rows.Err()
}

// FinishRun stores the final counts; a run with failures is marked failed.
func (s *Store) FinishRun(ctx context.Context, runID string, counts RunCounts) error {
	status := RunCompleted
	if counts.Failed > 0 {
		status = RunFailed
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, translated = ?, cached = ?, skipped = ?, failed = ?, finished_at = ? WHERE id = ?`,
		status, counts.Translated, counts.Cached, counts.Skipped, counts.Failed, time.Now(), runID)
	return err
}

// RunFailures lists the files of a run whose latest attempt failed.
func (s *Store) RunFailures(ctx context.Context, runID string) ([]RunFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_path, COALESCE(output_path, ''), status, COALESCE(stage, ''), COALESCE(error, ''), COALESCE(service, ''), COALESCE(latency_ms, 0)
		 FROM run_files WHERE run_id = ? AND status = 'failed' ORDER BY source_path`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []RunFile
	for rows.Next() {
		var f RunFile
		var ms int64
		if err := rows.Scan(&f.SourcePath, &f.OutputPath, &f.Status, &f.Stage, &f.Error, &f.Service, &ms); err != nil {
			return nil, err
		}
		f.Latency = time.Duration(ms) * time.Millisecond
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText applies Unicode NFC normalization for consistent cache keys.
func normalizeText(text string) string {
	return norm.NFC.String(text)
}
