package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/sakila-city-api/internal/config"
	"github.com/iliyamo/sakila-city-api/internal/database/dbtest"
)

func TestRequestIDGeneratedAndReused(t *testing.T) {
	e := echo.New()
	e.Use(RequestID())
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, GetRequestID(c)) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	id := rec.Header().Get(RequestIDHeader)
	if id == "" || rec.Body.String() != id {
		t.Fatalf("generated id %q, body %q", id, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("reused id = %q", got)
	}
}

func TestDBConnReleasedOnEveryPath(t *testing.T) {
	db := dbtest.New(t)

	e := echo.New()
	e.Use(echomw.Recover())
	var seen *sql.Conn
	e.GET("/ok", func(c echo.Context) error {
		conn, err := Conn(c)
		if err != nil {
			return err
		}
		seen = conn
		if db.Stats().InUse != 1 {
			t.Errorf("in use during request = %d, want 1", db.Stats().InUse)
		}
		return c.NoContent(http.StatusOK)
	}, DBConn(db))
	e.GET("/fail", func(c echo.Context) error { return errors.New("boom") }, DBConn(db))
	e.GET("/panic", func(c echo.Context) error { panic("boom") }, DBConn(db))

	for _, path := range []string{"/ok", "/fail", "/panic"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if in := db.Stats().InUse; in != 0 {
			t.Errorf("%s: %d connections still in use", path, in)
		}
	}
	if seen == nil {
		t.Fatal("handler did not receive a connection")
	}
	if err := seen.PingContext(context.Background()); !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("connection should be closed after request, ping err = %v", err)
	}
}

func TestConnWithoutMiddleware(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if _, err := Conn(c); !errors.Is(err, ErrNoConn) {
		t.Errorf("err = %v, want ErrNoConn", err)
	}
}

func TestMemoryRateLimiter(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.Use(NewRateLimiter(cfg, nil))
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "Hello") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	e := echo.New()
	e.Use(NewRateLimiter(config.RateLimitConfig{Enabled: false}, nil))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
}

func TestRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/cities", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/cities")

	got := rateKey(config.RateLimitConfig{Prefix: "rl"}, c)
	if got != "rl:ip:10.0.0.1:route:GET /cities" {
		t.Errorf("rateKey = %q", got)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`["Albany"]`))
	if err != nil {
		t.Fatal(err)
	}
	status, gotHdr, body, ok := decodePayload(bs)
	if !ok || status != 200 || gotHdr.Get("Content-Type") != "application/json" || string(body) != `["Albany"]` {
		t.Errorf("decode = %d %v %q %v", status, gotHdr, body, ok)
	}
	if _, _, _, ok := decodePayload([]byte{0, 0}); ok {
		t.Error("short payload should not decode")
	}
}

func TestCacheKeyScopedByRoute(t *testing.T) {
	rc := NewResponseCache(config.CacheConfig{Prefix: "cache"}, nil)
	e := echo.New()

	c1 := e.NewContext(httptest.NewRequest(http.MethodGet, "/cities?country_name=USA", nil), httptest.NewRecorder())
	c1.SetPath("/cities")
	c2 := e.NewContext(httptest.NewRequest(http.MethodGet, "/cities?country_name=Canada", nil), httptest.NewRecorder())
	c2.SetPath("/cities")

	k1, k2 := rc.key(c1, 0), rc.key(c2, 0)
	if !strings.HasPrefix(k1, "cache:/cities:0:") {
		t.Errorf("key %q should be scoped to its route and generation", k1)
	}
	if k1 == k2 {
		t.Error("different queries should produce different keys")
	}
	if rc.key(c1, 1) == k1 {
		t.Error("a new generation should produce a new key")
	}
}

func TestCacheDisabledPassesThrough(t *testing.T) {
	rc := NewResponseCache(config.CacheConfig{Enabled: true, Methods: "GET"}, nil)
	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "Hello") }, rc.Middleware())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Body.String() != "Hello" || rec.Header().Get("X-Cache") != "" {
		t.Errorf("body %q, X-Cache %q", rec.Body.String(), rec.Header().Get("X-Cache"))
	}
	if err := rc.Invalidate(context.Background(), "/cities"); err != nil {
		t.Errorf("Invalidate on disabled cache: %v", err)
	}
}

type codedErr struct{ code int }

func (e codedErr) Error() string   { return "coded" }
func (e codedErr) HTTPStatus() int { return e.code }

func TestStatusOf(t *testing.T) {
	if got := statusOf(200, nil); got != 200 {
		t.Errorf("nil error: %d", got)
	}
	if got := statusOf(200, codedErr{400}); got != 400 {
		t.Errorf("coded error: %d", got)
	}
	if got := statusOf(200, echo.NewHTTPError(http.StatusNotFound)); got != 404 {
		t.Errorf("echo error: %d", got)
	}
	if got := statusOf(200, errors.New("x")); got != 500 {
		t.Errorf("plain error: %d", got)
	}
}
