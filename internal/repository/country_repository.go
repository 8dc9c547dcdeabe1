package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/sakila-city-api/internal/model"
)

type CountryRepo struct {
	db DBTX
}

func NewCountryRepo(db DBTX) *CountryRepo {
	return &CountryRepo{db: db}
}

// GetByID fetches a country by exact id match. It returns
// ErrCountryNotFound if no row is found.
func (r *CountryRepo) GetByID(ctx context.Context, id int64) (*model.Country, error) {
	const q = "SELECT country_id, country FROM country WHERE country_id = ?"
	var c model.Country
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &c.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCountryNotFound
		}
		return nil, fmt.Errorf("get country %d: %w", id, err)
	}
	return &c, nil
}
