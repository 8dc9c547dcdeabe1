package repository

import (
	"errors"
	"math"
	"math/big"
)

// ErrPageOutOfRange is returned by NewPage when the offset does not fit in
// an int.
var ErrPageOutOfRange = errors.New("page offset out of range")

// Page limits a listing to Limit rows starting at Offset. Values are passed
// to the store as bound parameters without bounds checks.
type Page struct {
	Limit  int
	Offset int
}

var (
	minInt = big.NewInt(math.MinInt)
	maxInt = big.NewInt(math.MaxInt)
)

// NewPage converts a 1-indexed page number and page size into a Page.
// Offsets that would wrap are rejected rather than sent to the store.
func NewPage(perPage, page int) (Page, error) {
	off := new(big.Int).Sub(big.NewInt(int64(page)), big.NewInt(1))
	off.Mul(off, big.NewInt(int64(perPage)))
	if off.Cmp(minInt) < 0 || off.Cmp(maxInt) > 0 {
		return Page{}, ErrPageOutOfRange
	}
	return Page{Limit: perPage, Offset: int(off.Int64())}, nil
}

// apply appends the LIMIT/OFFSET clause and its arguments to a query.
func (p *Page) apply(query string, args []any) (string, []any) {
	if p == nil {
		return query, args
	}
	return query + " LIMIT ? OFFSET ?", append(args, p.Limit, p.Offset)
}
