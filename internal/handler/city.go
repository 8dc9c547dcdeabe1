package handler

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/sakila-city-api/internal/middleware"
	"github.com/iliyamo/sakila-city-api/internal/repository"
	"github.com/iliyamo/sakila-city-api/internal/service"
)

// errMalformedPage is not a ValidationError: bad pagination surfaces as a
// plain 500.
var errMalformedPage = errors.New("malformed pagination")

type CityHandler struct {
	svc *service.CityService
}

func NewCityHandler(svc *service.CityService) *CityHandler {
	return &CityHandler{svc: svc}
}

// Create handles POST /cities. The body must be a JSON object with
// country_id and city_name; any other keys are echoed back untouched along
// with the assigned city_id.
func (h *CityHandler) Create(c echo.Context) error {
	var body map[string]any
	if err := c.Echo().JSONSerializer.Deserialize(c, &body); err != nil || body == nil {
		return ValidationError{Message: msgInvalidBody}
	}

	rawCountry, ok := body["country_id"]
	if !ok {
		return ValidationError{Message: msgCountryIDNeeded}
	}
	rawName, ok := body["city_name"]
	if !ok {
		return ValidationError{Message: msgCityNameNeeded}
	}
	countryID, ok := parseCountryID(rawCountry)
	if !ok {
		// nothing that is not an integer can match a country row
		return ValidationError{Message: msgInvalidCountryID}
	}

	conn, err := middleware.Conn(c)
	if err != nil {
		return err
	}
	city, err := h.svc.Create(c.Request().Context(), conn, cityName(rawName), countryID)
	if errors.Is(err, repository.ErrCountryNotFound) {
		return ValidationError{Message: msgInvalidCountryID}
	}
	if err != nil {
		return err
	}

	body["city_id"] = city.ID
	return c.JSON(http.StatusOK, body)
}

// List handles GET /cities.
func (h *CityHandler) List(c echo.Context) error {
	filter, err := cityFilter(c.QueryParams())
	if err != nil {
		return err
	}
	conn, err := middleware.Conn(c)
	if err != nil {
		return err
	}
	names, err := repository.NewCityRepo(conn).ListNames(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, names)
}

// cityFilter reads country_name, per_page and page. A present but empty
// country_name still filters. page is only read when per_page is given.
func cityFilter(q url.Values) (repository.CityFilter, error) {
	var f repository.CityFilter
	if vals, ok := q["country_name"]; ok {
		name := vals[0]
		f.Country = &name
	}

	perPageVals, ok := q["per_page"]
	if !ok {
		return f, nil
	}
	pageVals, ok := q["page"]
	if !ok {
		return f, fmt.Errorf("%w: per_page without page", errMalformedPage)
	}
	perPage, err := strconv.Atoi(strings.TrimSpace(perPageVals[0]))
	if err != nil {
		return f, fmt.Errorf("%w: per_page: %v", errMalformedPage, err)
	}
	page, err := strconv.Atoi(strings.TrimSpace(pageVals[0]))
	if err != nil {
		return f, fmt.Errorf("%w: page: %v", errMalformedPage, err)
	}
	p, err := repository.NewPage(perPage, page)
	if err != nil {
		return f, fmt.Errorf("%w: %v", errMalformedPage, err)
	}
	f.Page = &p
	return f, nil
}

// parseCountryID accepts integral JSON numbers and strings holding an
// integer.
func parseCountryID(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// cityName stores strings as given and anything else as its JSON text.
func cityName(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	bs, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(bs)
}
