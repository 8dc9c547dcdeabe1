package model

// Country is a row in the `country` table. Cities reference it by ID.
type Country struct {
	ID   int64  // country.country_id
	Name string // country.country
}
