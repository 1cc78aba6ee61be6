// Package sqlitestore is an optional, durable implementation of
// evolution.Store backed by modernc.org/sqlite, so error patterns
// survive past a single process's lifetime (SPEC_FULL.md §3.4). This
// is unrelated to the excluded "persistent program images" Non-goal,
// which concerns VM/program state, not the evolution subsystem's
// learned-pattern cache.
package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/sovereign-vm/sovereign/internal/evolution"
)

const schema = `
CREATE TABLE IF NOT EXISTS patterns (
	category TEXT NOT NULL,
	message TEXT NOT NULL,
	frequency INTEGER NOT NULL DEFAULT 0,
	success_rate REAL NOT NULL DEFAULT 0,
	fix_templates TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (category, message)
);`

// Store is a SQLite-backed evolution.Store. FindSimilar, Record and
// UpdateSuccess use the first stored pattern of the category whose
// similarity exceeds 0.6, in the order SQLite returns the rows; they
// do not pick the most similar of several such patterns.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path and
// ensures the patterns table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) FindSimilar(category evolution.Category, message string) (evolution.Pattern, bool) {
	for _, p := range s.loadCategory(category) {
		if jaccard(p.Message, message) > 0.6 {
			return p, true
		}
	}
	return evolution.Pattern{}, false
}

func (s *Store) Record(category evolution.Category, message string) evolution.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.loadCategory(category) {
		if jaccard(p.Message, message) > 0.6 {
			p.Frequency++
			s.save(p)
			return p
		}
	}
	p := evolution.Pattern{Category: category, Message: message, Frequency: 1}
	s.save(p)
	return p
}

func (s *Store) UpdateSuccess(category evolution.Category, message string, success bool, candidate string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var match *evolution.Pattern
	for _, p := range s.loadCategory(category) {
		if jaccard(p.Message, message) > 0.6 {
			pp := p
			match = &pp
			break
		}
	}
	if match == nil {
		match = &evolution.Pattern{Category: category, Message: message, Frequency: 1}
	}
	match.Frequency++
	outcome := 0.0
	if success {
		outcome = 1.0
		match.FixTemplates = append(match.FixTemplates, candidate)
	}
	n := float64(match.Frequency)
	match.FixSuccessRate += (outcome - match.FixSuccessRate) / n
	s.save(*match)
}

func (s *Store) All() []evolution.Pattern {
	rows, err := s.db.Query(`SELECT category, message, frequency, success_rate, fix_templates FROM patterns`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var out []evolution.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Store) Import(patterns []evolution.Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, incoming := range patterns {
		existing, ok := s.lookup(incoming.Category, incoming.Message)
		if ok {
			existing.Frequency += incoming.Frequency
			existing.FixTemplates = append(existing.FixTemplates, incoming.FixTemplates...)
			s.save(existing)
		} else {
			s.save(incoming)
		}
	}
}

func (s *Store) lookup(category evolution.Category, message string) (evolution.Pattern, bool) {
	row := s.db.QueryRow(`SELECT category, message, frequency, success_rate, fix_templates FROM patterns WHERE category = ? AND message = ?`, string(category), message)
	p, err := scanPattern(row)
	return p, err == nil
}

func (s *Store) loadCategory(category evolution.Category) []evolution.Pattern {
	rows, err := s.db.Query(`SELECT category, message, frequency, success_rate, fix_templates FROM patterns WHERE category = ?`, string(category))
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []evolution.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (s *Store) save(p evolution.Pattern) {
	templates, _ := json.Marshal(p.FixTemplates)
	s.db.Exec(`
		INSERT INTO patterns (category, message, frequency, success_rate, fix_templates)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category, message) DO UPDATE SET
			frequency = excluded.frequency,
			success_rate = excluded.success_rate,
			fix_templates = excluded.fix_templates
	`, string(p.Category), p.Message, p.Frequency, p.FixSuccessRate, string(templates))
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPattern(row scanner) (evolution.Pattern, error) {
	var category, message, templatesJSON string
	var frequency int
	var successRate float64
	if err := row.Scan(&category, &message, &frequency, &successRate, &templatesJSON); err != nil {
		return evolution.Pattern{}, err
	}
	var templates []string
	json.Unmarshal([]byte(templatesJSON), &templates)
	return evolution.Pattern{
		Category:       evolution.Category(category),
		Message:        message,
		Frequency:      frequency,
		FixSuccessRate: successRate,
		FixTemplates:   templates,
	}, nil
}

func jaccard(a, b string) float64 {
	wa := splitWords(a)
	wb := splitWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func splitWords(s string) map[string]bool {
	out := map[string]bool{}
	word := ""
	flush := func() {
		if word != "" {
			out[word] = true
			word = ""
		}
	}
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			flush()
			continue
		}
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}
		word += string(r)
	}
	flush()
	return out
}
