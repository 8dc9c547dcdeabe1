package model

import "time"

// City is a row in the `city` table. The service assigns ID itself; the
// table has no auto-increment column it relies on.
type City struct {
	ID         int64     // city.city_id
	Name       string    // city.city
	CountryID  int64     // city.country_id
	LastUpdate time.Time // city.last_update
}
