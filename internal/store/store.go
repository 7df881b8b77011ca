// Package store keeps a translation memory of model output so a caption that
// was translated once is answered from memory next time. Entries are keyed on
// the normalized source text, the target language and the model that
// produced them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

// Memory is a translation memory.
type Memory interface {
	Lookup(ctx context.Context, text, lang, model string) (string, bool, error)
	Remember(ctx context.Context, text, lang, model, translated string) error
}

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

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
		target_lang TEXT NOT NULL,
		model_id TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(source_text, target_lang, model_id)
	);

	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON translation_memory(source_text, target_lang, model_id);
	CREATE INDEX IF NOT EXISTS idx_memory_lang ON translation_memory(target_lang);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Lookup returns the remembered translation and bumps its usage count.
func (s *Store) Lookup(ctx context.Context, text, lang, model string) (string, bool, error) {
	key := normalizeText(text)

	var translated string
	err := s.db.QueryRowContext(ctx,
		`SELECT translated_text FROM translation_memory WHERE source_text = ? AND target_lang = ? AND model_id = ?`,
		key, lang, model).Scan(&translated)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE translation_memory SET usage_count = usage_count + 1, last_used = ? WHERE source_text = ? AND target_lang = ? AND model_id = ?`,
		time.Now(), key, lang, model)
	return translated, true, err
}

// Remember stores translated as the model's output for text. A repeated call
// replaces the text and keeps the usage count.
func (s *Store) Remember(ctx context.Context, text, lang, model, translated string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO translation_memory (id, source_text, target_lang, model_id, translated_text, usage_count, last_used, created_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(source_text, target_lang, model_id) DO UPDATE SET translated_text = excluded.translated_text, last_used = excluded.last_used`,
		uuid.NewString(), normalizeText(text), lang, model, translated, now, now)
	return err
}

// MemoryEntry is a row from the translation_memory table.
type MemoryEntry struct {
	ID             string    `json:"id"`
	SourceText     string    `json:"sourceText"`
	TargetLang     string    `json:"targetLang"`
	ModelID        string    `json:"modelId"`
	TranslatedText string    `json:"translatedText"`
	UsageCount     int       `json:"usageCount"`
	LastUsed       time.Time `json:"lastUsed"`
}

// CacheStats summarises translation memory usage.
type CacheStats struct {
	TotalEntries int            `json:"totalEntries"`
	TotalUsage   int            `json:"totalUsage"`
	ByLanguage   map[string]int `json:"byLanguage"`
}

// List returns memory entries ordered by most recently used, optionally
// restricted to one target language.
func (s *Store) List(ctx context.Context, lang string) ([]MemoryEntry, error) {
	query := `SELECT id, source_text, target_lang, model_id, translated_text, usage_count, last_used FROM translation_memory`
	var args []interface{}
	if lang != "" {
		query += ` WHERE target_lang = ?`
		args = append(args, lang)
	}
	query += ` ORDER BY last_used DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.SourceText, &e.TargetLang, &e.ModelID, &e.TranslatedText, &e.UsageCount, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{ByLanguage: make(map[string]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(usage_count), 0) FROM translation_memory`).
		Scan(&stats.TotalEntries, &stats.TotalUsage)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT target_lang, COUNT(*) FROM translation_memory GROUP BY target_lang`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var lang string
		var n int
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, err
		}
		stats.ByLanguage[lang] = n
	}
	return stats, rows.Err()
}

// Delete permanently removes one entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM translation_memory WHERE id = ?`, id)
	return err
}

// Clear removes every entry, or only those for lang when it is not empty.
func (s *Store) Clear(ctx context.Context, lang string) (int64, error) {
	query := `DELETE FROM translation_memory`
	var args []interface{}
	if lang != "" {
		query += ` WHERE target_lang = ?`
		args = append(args, lang)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// Chain consults memories in order and writes through to all of them.
type Chain []Memory

func (c Chain) Lookup(ctx context.Context, text, lang, model string) (string, bool, error) {
	var firstErr error
	for _, m := range c {
		v, ok, err := m.Lookup(ctx, text, lang, model)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return v, true, nil
		}
	}
	return "", false, firstErr
}

func (c Chain) Remember(ctx context.Context, text, lang, model, translated string) error {
	var firstErr error
	for _, m := range c {
		if err := m.Remember(ctx, text, lang, model, translated); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ Memory = (*Store)(nil)
	_ Memory = Chain(nil)
)
