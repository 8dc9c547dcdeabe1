// Package handler exposes the HTTP handlers of the city API and the error
// handler that shapes every failure into {"error": "..."}.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/sakila-city-api/internal/middleware"
)

// Client-facing validation messages.
const (
	msgCountryIDNeeded  = "Invalid JSON structure, field 'country_id' needed"
	msgCityNameNeeded   = "Invalid JSON structure, field 'city_name' needed"
	msgInvalidCountryID = "Invalid country_id"
	msgInvalidBody      = "invalid request body"
)

// ValidationError is a client mistake reported as 400 with its message.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string   { return e.Message }
func (e ValidationError) HTTPStatus() int { return http.StatusBadRequest }

// ErrorHandler is the echo.HTTPErrorHandler for the API. Validation errors
// keep their message, echo routing errors keep their status, and anything
// else becomes a 500 without detail.
func ErrorHandler(err error, c echo.Context) {
	var (
		status  int
		message string
		ve      ValidationError
		he      *echo.HTTPError
	)
	switch {
	case errors.As(err, &ve):
		status, message = ve.HTTPStatus(), ve.Message
	case errors.As(err, &he):
		status = he.Code
		if msg, ok := he.Message.(string); ok && status < 500 {
			message = msg
		} else {
			message = http.StatusText(status)
		}
	default:
		status, message = http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}

	log := middleware.GetLogger(c)
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		log.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, echo.Map{"error": message})
}
