package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/sakila-city-api/internal/model"
)

type LanguageRepo struct {
	db DBTX
}

func NewLanguageRepo(db DBTX) *LanguageRepo {
	return &LanguageRepo{db: db}
}

// RoleCounts counts film_actor rows per language name. Every language
// appears, with 0 when it has no films or its films have no actors. Films
// without a language are not reachable from the language table and are not
// counted.
func (r *LanguageRepo) RoleCounts(ctx context.Context) (model.LanguageRoles, error) {
	const q = `SELECT fl.name, COUNT(fa.actor_id)
		FROM (
			SELECT f.film_id, l.name
			FROM language l
			LEFT JOIN film f ON f.language_id = l.language_id
		) fl
		LEFT JOIN film_actor fa ON fa.film_id = fl.film_id
		GROUP BY fl.name`

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("language role counts: %w", err)
	}
	defer rows.Close()

	out := make(model.LanguageRoles)
	for rows.Next() {
		var (
			name  sql.NullString
			count int64
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		key := "null"
		if name.Valid {
			key = name.String
		}
		out[key] += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
