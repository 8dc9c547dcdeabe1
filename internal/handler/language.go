package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/sakila-city-api/internal/middleware"
	"github.com/iliyamo/sakila-city-api/internal/repository"
)

// LangRoles handles GET /lang_roles: a map of language name to the number
// of actor roles in films of that language.
func LangRoles(c echo.Context) error {
	conn, err := middleware.Conn(c)
	if err != nil {
		return err
	}
	counts, err := repository.NewLanguageRepo(conn).RoleCounts(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, counts)
}
