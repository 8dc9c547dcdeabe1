// Package dbtest builds throwaway sakila databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/sakila-city-api/internal/database/schema"
)

// Seed rows loaded by New. Cities per country, sorted by name:
//
//	USA (1):    Albany, Austin, Boston, Denver, Seattle
//	Canada (2): Calgary, Toronto
//	Iceland (3): none
//
// Role counts per language: English 3, Italian 1, Japanese 0, French 0.
// Film 5 has no language and its role is not counted anywhere.
var seed = []string{
	`INSERT INTO country (country_id, country) VALUES (1, 'USA'), (2, 'Canada'), (3, 'Iceland')`,
	`INSERT INTO city (city_id, city, country_id, last_update) VALUES
		(1, 'Austin', 1, '2006-02-15 04:45:25'),
		(2, 'Boston', 1, '2006-02-15 04:45:25'),
		(3, 'Denver', 1, '2006-02-15 04:45:25'),
		(4, 'Seattle', 1, '2006-02-15 04:45:25'),
		(5, 'Albany', 1, '2006-02-15 04:45:25'),
		(6, 'Toronto', 2, '2006-02-15 04:45:25'),
		(7, 'Calgary', 2, '2006-02-15 04:45:25')`,
	`INSERT INTO language (language_id, name) VALUES (1, 'English'), (2, 'Italian'), (3, 'Japanese'), (4, 'French')`,
	`INSERT INTO film (film_id, title, language_id) VALUES
		(1, 'ACADEMY DINOSAUR', 1),
		(2, 'ACE GOLDFINGER', 1),
		(3, 'ADAPTATION HOLES', 2),
		(4, 'AFFAIR PREJUDICE', 4),
		(5, 'AGENT TRUMAN', NULL)`,
	`INSERT INTO film_actor (actor_id, film_id) VALUES (10, 1), (11, 1), (10, 2), (12, 3), (13, 5)`,
}

// MaxCityID is the largest city_id in the seed data.
const MaxCityID = 7

// New returns a migrated and seeded database backed by a file in a
// temporary directory. A file is used instead of :memory: so every pooled
// connection sees the same data.
func New(t testing.TB) *sql.DB {
	t.Helper()
	db := Empty(t)
	for _, stmt := range seed {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return db
}

// Empty returns a migrated database with no rows.
func Empty(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sakila.db")
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(schema.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatalf("goose dialect: %v", err)
	}
	if err := goose.Up(db, "."); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
