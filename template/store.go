package template

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultMaxPerLabel caps how many template variants one label may hold.
const DefaultMaxPerLabel = 16

// Store is the durable template database: one row per (label,
// template_id), SQLite-backed. Writes to one label are serialised by a
// per-label mutex; reads take no application lock and see either the
// pre-write or post-write row, never a torn one.
type Store struct {
	db          *sql.DB
	maxPerLabel int
	logger      *slog.Logger

	mu         sync.Mutex
	labelLocks map[string]*sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxPerLabel overrides the per-label template cap (default 16).
func WithMaxPerLabel(n int) StoreOption {
	return func(s *Store) { s.maxPerLabel = n }
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// OpenStore opens (or creates) the template database at path.
func OpenStore(path string, opts ...StoreOption) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("template: create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("template: open store: %w", err)
	}
	s := &Store{
		db:          db,
		maxPerLabel: DefaultMaxPerLabel,
		logger:      slog.Default(),
		labelLocks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS templates (
			label            TEXT NOT NULL,
			template_id      TEXT NOT NULL,
			sample_count     INTEGER NOT NULL,
			signature        TEXT NOT NULL,
			training_text    TEXT NOT NULL,
			coord_space      TEXT NOT NULL DEFAULT '',
			field_patterns   TEXT NOT NULL,
			field_confidence TEXT NOT NULL,
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL,
			PRIMARY KEY (label, template_id)
		);
		CREATE INDEX IF NOT EXISTS idx_templates_label ON templates(label);
	`)
	if err != nil {
		return fmt.Errorf("template: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// LockLabel acquires the label's write mutex and returns the unlock
// function. All template writes for a label must run under it.
func (s *Store) LockLabel(label string) func() {
	s.mu.Lock()
	lock, ok := s.labelLocks[label]
	if !ok {
		lock = &sync.Mutex{}
		s.labelLocks[label] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// List returns the label's templates ordered by sample count descending,
// then most recently updated.
func (s *Store) List(ctx context.Context, label string) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label, template_id, sample_count, signature, training_text,
		       coord_space, field_patterns, field_confidence, created_at, updated_at
		FROM templates WHERE label = ?
		ORDER BY sample_count DESC, updated_at DESC`, label)
	if err != nil {
		return nil, fmt.Errorf("template: list %q: %w", label, err)
	}
	defer rows.Close()

	var out []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get returns one template, or nil when absent.
func (s *Store) Get(ctx context.Context, label, templateID string) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT label, template_id, sample_count, signature, training_text,
		       coord_space, field_patterns, field_confidence, created_at, updated_at
		FROM templates WHERE label = ? AND template_id = ?`, label, templateID)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// Upsert inserts or replaces a template atomically and enforces the
// per-label cap, evicting the lowest-confidence, lowest-sample-count,
// oldest template on overflow.
func (s *Store) Upsert(ctx context.Context, t *Template) error {
	sig, err := json.Marshal(t.Signature)
	if err != nil {
		return fmt.Errorf("template: encode signature: %w", err)
	}
	patterns, err := json.Marshal(t.FieldPatterns)
	if err != nil {
		return fmt.Errorf("template: encode patterns: %w", err)
	}
	confidence, err := json.Marshal(t.FieldConfidence)
	if err != nil {
		return fmt.Errorf("template: encode confidence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (label, template_id, sample_count, signature, training_text,
		                       coord_space, field_patterns, field_confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(label, template_id) DO UPDATE SET
			sample_count = excluded.sample_count,
			signature = excluded.signature,
			training_text = excluded.training_text,
			coord_space = excluded.coord_space,
			field_patterns = excluded.field_patterns,
			field_confidence = excluded.field_confidence,
			updated_at = excluded.updated_at`,
		t.Label, t.TemplateID, t.SampleCount, string(sig), t.TrainingText,
		t.CoordSpace, string(patterns), string(confidence),
		t.CreatedAt.Format(time.RFC3339Nano), t.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("template: upsert: %w", err)
	}
	return s.enforceCap(ctx, t.Label)
}

// Delete removes one template.
func (s *Store) Delete(ctx context.Context, label, templateID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM templates WHERE label = ? AND template_id = ?`, label, templateID)
	if err != nil {
		return fmt.Errorf("template: delete: %w", err)
	}
	return nil
}

// CountPerLabel returns the number of templates stored for each label.
func (s *Store) CountPerLabel(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, COUNT(*) FROM templates GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("template: count per label: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		out[label] = n
	}
	return out, rows.Err()
}

func (s *Store) enforceCap(ctx context.Context, label string) error {
	templates, err := s.List(ctx, label)
	if err != nil {
		return err
	}
	if len(templates) <= s.maxPerLabel {
		return nil
	}

	sort.Slice(templates, func(i, j int) bool {
		a, b := templates[i], templates[j]
		if a.MeanConfidence() != b.MeanConfidence() {
			return a.MeanConfidence() < b.MeanConfidence()
		}
		if a.SampleCount != b.SampleCount {
			return a.SampleCount < b.SampleCount
		}
		return a.UpdatedAt.Before(b.UpdatedAt)
	})
	for _, victim := range templates[:len(templates)-s.maxPerLabel] {
		s.logger.Info("evicting template over per-label cap",
			"label", label, "template_id", victim.TemplateID,
			"mean_confidence", victim.MeanConfidence(), "sample_count", victim.SampleCount)
		if err := s.Delete(ctx, label, victim.TemplateID); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	var (
		t                          Template
		sig, patterns, confidence  string
		createdAtRaw, updatedAtRaw string
	)
	err := row.Scan(&t.Label, &t.TemplateID, &t.SampleCount, &sig, &t.TrainingText,
		&t.CoordSpace, &patterns, &confidence, &createdAtRaw, &updatedAtRaw)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sig), &t.Signature); err != nil {
		return nil, fmt.Errorf("template: decode signature: %w", err)
	}
	if err := json.Unmarshal([]byte(patterns), &t.FieldPatterns); err != nil {
		return nil, fmt.Errorf("template: decode patterns: %w", err)
	}
	if err := json.Unmarshal([]byte(confidence), &t.FieldConfidence); err != nil {
		return nil, fmt.Errorf("template: decode confidence: %w", err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtRaw); err != nil {
		return nil, fmt.Errorf("template: decode created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAtRaw); err != nil {
		return nil, fmt.Errorf("template: decode updated_at: %w", err)
	}
	return &t, nil
}
