package middleware

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"
)

const ConnKey = "db_conn"

// ErrNoConn is returned by Conn when DBConn did not run for the request.
var ErrNoConn = errors.New("no database connection bound to request")

// DBConn checks out one connection from the pool for the lifetime of the
// request and returns it to the pool on every exit path, panics included.
func DBConn(db *sql.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			conn, err := db.Conn(c.Request().Context())
			if err != nil {
				return fmt.Errorf("acquire connection: %w", err)
			}
			defer func() { _ = conn.Close() }()

			c.Set(ConnKey, conn)
			defer c.Set(ConnKey, nil)
			return next(c)
		}
	}
}

// Conn returns the connection checked out by DBConn.
func Conn(c echo.Context) (*sql.Conn, error) {
	if conn, ok := c.Get(ConnKey).(*sql.Conn); ok && conn != nil {
		return conn, nil
	}
	return nil, ErrNoConn
}
