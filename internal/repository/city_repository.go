package repository

import (
	"context"
	"fmt"

	"github.com/iliyamo/sakila-city-api/internal/model"
)

// CityFilter narrows a city listing. A nil Country lists every city; a
// non-nil Country, even an empty one, matches country names exactly.
type CityFilter struct {
	Country *string
	Page    *Page
}

// CityRepo encapsulates the queries over the city table.
type CityRepo struct {
	db DBTX
}

func NewCityRepo(db DBTX) *CityRepo {
	return &CityRepo{db: db}
}

// NextID returns one more than the current maximum city_id, or 1 for an
// empty table. Nothing reserves the returned id: two callers can receive
// the same value and the second Create then fails on the primary key.
func (r *CityRepo) NextID(ctx context.Context) (int64, error) {
	const q = "SELECT COALESCE(MAX(city_id), 0) FROM city"
	var maxID int64
	if err := r.db.QueryRowContext(ctx, q).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("max city_id: %w", err)
	}
	return maxID + 1, nil
}

// Create inserts c as a single auto-committed statement.
func (r *CityRepo) Create(ctx context.Context, c *model.City) error {
	const q = "INSERT INTO city (city_id, city, country_id, last_update) VALUES (?, ?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, q, c.ID, c.Name, c.CountryID, c.LastUpdate); err != nil {
		return fmt.Errorf("insert city %d: %w", c.ID, err)
	}
	return nil
}

// ListNames returns city names in ascending order, optionally restricted to
// one country and one page.
func (r *CityRepo) ListNames(ctx context.Context, f CityFilter) ([]string, error) {
	var (
		q    string
		args []any
	)
	if f.Country != nil {
		q = `SELECT ci.city
			FROM city ci
			JOIN country co ON co.country_id = ci.country_id
			WHERE co.country = ?
			ORDER BY ci.city ASC`
		args = append(args, *f.Country)
	} else {
		q = "SELECT city FROM city ORDER BY city ASC"
	}
	q, args = f.Page.apply(q, args)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}
