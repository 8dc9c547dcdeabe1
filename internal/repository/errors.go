// Package repository contains data access logic separated from HTTP handlers.
// Repositories are built around a DBTX so the same code runs against the
// pool, a single checked-out connection or a transaction.
package repository

import "errors"

// ErrCountryNotFound is returned when no country row has the requested id.
// Handlers translate it into a 400 response.
var ErrCountryNotFound = errors.New("country not found")
