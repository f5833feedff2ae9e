// Package docs is a small local knowledge base. Markdown and text
// files are ingested into SQLite and searched by keyword scoring.
package docs

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Document is one ingested file.
type Document struct {
	Path    string
	Title   string
	Content string
}

// Hit is a scored search result with a snippet around the first
// matching term.
type Hit struct {
	Path    string
	Title   string
	Snippet string
	Score   int
}

// Store holds the document index.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the document database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Put inserts or replaces a document.
func (s *Store) Put(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (path, title, content, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			updated_at = excluded.updated_at
	`, doc.Path, doc.Title, doc.Content, time.Now())
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.Path, err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// IngestDir walks dir and indexes every .md and .txt file. Returns
// the number of files indexed. Unreadable files are logged and
// skipped.
func (s *Store) IngestDir(ctx context.Context, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".md", ".txt":
		default:
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable document", "path", path, "error", err)
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		doc := Document{
			Path:    rel,
			Title:   titleOf(rel, string(content)),
			Content: string(content),
		}
		if err := s.Put(ctx, doc); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("ingest %s: %w", dir, err)
	}
	return count, nil
}

// titleOf takes the first markdown heading, or falls back to the
// file name without extension.
func titleOf(path, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
		if line != "" {
			break
		}
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Search scores every document against the query terms and returns
// the top limit hits. A document scores by the number of term
// occurrences, with title matches weighted heavier.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path, title, content FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.Path, &doc.Title, &doc.Content); err != nil {
			return nil, err
		}

		score, first := scoreDocument(doc, terms)
		if score == 0 {
			continue
		}
		hits = append(hits, Hit{
			Path:    doc.Path,
			Title:   doc.Title,
			Snippet: snippet(doc.Content, first),
			Score:   score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// scoreDocument counts term occurrences. Title hits count five times
// a body hit. first is the byte offset of the earliest body match,
// -1 when every match is in the title.
func scoreDocument(doc Document, terms []string) (score, first int) {
	title := strings.ToLower(doc.Title)
	body := strings.ToLower(doc.Content)
	first = -1

	for _, term := range terms {
		score += 5 * strings.Count(title, term)
		if n := strings.Count(body, term); n > 0 {
			score += n
			idx := strings.Index(body, term)
			if first < 0 || idx < first {
				first = idx
			}
		}
	}
	return score, first
}

// snippet returns roughly 200 characters of context around offset.
func snippet(content string, offset int) string {
	if offset < 0 {
		offset = 0
	}
	start := offset - 60
	if start < 0 {
		start = 0
	}
	end := start + 200
	if end > len(content) {
		end = len(content)
	}

	// Snap to rune boundaries.
	for start > 0 && start < len(content) && !isRuneStart(content[start]) {
		start--
	}
	for end < len(content) && !isRuneStart(content[end]) {
		end++
	}

	out := strings.TrimSpace(content[start:end])
	out = strings.Join(strings.Fields(out), " ")
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out += "..."
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// tokenize lowercases and splits a query, dropping one-letter terms.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
