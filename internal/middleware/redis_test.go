package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/sakila-city-api/internal/config"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{Enabled: true, Methods: "GET", TTL: time.Minute, Prefix: "cache", MaxBodyBytes: 1 << 20}
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func cachedKeys(mr *miniredis.Miniredis, route string) []string {
	var out []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "cache:"+route+":") {
			out = append(out, k)
		}
	}
	return out
}

func TestResponseCacheMissThenHit(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	rc := NewResponseCache(testCacheConfig(), rdb)

	calls := 0
	e := echo.New()
	e.GET("/cities", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, []string{"Albany", "Austin"})
	}, rc.Middleware())

	first := get(e, "/cities?country_name=USA")
	if first.Header().Get("X-Cache") != "MISS" {
		t.Errorf("first X-Cache = %q", first.Header().Get("X-Cache"))
	}
	second := get(e, "/cities?country_name=USA")
	if second.Header().Get("X-Cache") != "HIT" {
		t.Errorf("second X-Cache = %q", second.Header().Get("X-Cache"))
	}
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
	if second.Code != http.StatusOK || second.Body.String() != first.Body.String() {
		t.Errorf("hit = %d %q, want %q", second.Code, second.Body.String(), first.Body.String())
	}
	if ct := second.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		t.Errorf("hit Content-Type = %q", ct)
	}

	if get(e, "/cities?country_name=Canada").Header().Get("X-Cache") != "MISS" {
		t.Error("a different query should miss")
	}
	if n := len(cachedKeys(mr, "/cities")); n != 2 {
		t.Errorf("%d cached entries, want 2", n)
	}
}

func TestResponseCacheSkipsNon200(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	rc := NewResponseCache(testCacheConfig(), rdb)

	calls := 0
	e := echo.New()
	e.GET("/cities", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusNotFound, echo.Map{"error": "Not Found"})
	}, rc.Middleware())

	for i := 0; i < 2; i++ {
		if rec := get(e, "/cities"); rec.Code != http.StatusNotFound || rec.Header().Get("X-Cache") != "MISS" {
			t.Errorf("status %d, X-Cache %q", rec.Code, rec.Header().Get("X-Cache"))
		}
	}
	if calls != 2 {
		t.Errorf("handler ran %d times, want 2", calls)
	}
	if keys := cachedKeys(mr, "/cities"); len(keys) != 0 {
		t.Errorf("non-200 response stored: %v", keys)
	}
}

func TestResponseCacheInvalidateIsScopedToRoute(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	rc := NewResponseCache(testCacheConfig(), rdb)

	e := echo.New()
	ok := func(c echo.Context) error { return c.String(http.StatusOK, c.Path()) }
	e.GET("/cities", ok, rc.Middleware())
	e.GET("/lang_roles", ok, rc.Middleware())

	get(e, "/cities")
	get(e, "/cities?per_page=2&page=1")
	get(e, "/lang_roles")

	if err := rc.Invalidate(context.Background(), "/cities"); err != nil {
		t.Fatal(err)
	}
	if keys := cachedKeys(mr, "/cities"); len(keys) != 0 {
		t.Errorf("/cities entries left after invalidate: %v", keys)
	}
	if keys := cachedKeys(mr, "/lang_roles"); len(keys) != 1 {
		t.Errorf("/lang_roles entries = %v, want 1", keys)
	}
	if gen, err := mr.Get("cache:gen:/cities"); err != nil || gen != "1" {
		t.Errorf("generation = %q, %v", gen, err)
	}

	if rec := get(e, "/lang_roles"); rec.Header().Get("X-Cache") != "HIT" {
		t.Errorf("/lang_roles X-Cache = %q, want HIT", rec.Header().Get("X-Cache"))
	}
	if rec := get(e, "/cities"); rec.Header().Get("X-Cache") != "MISS" {
		t.Errorf("/cities X-Cache = %q, want MISS", rec.Header().Get("X-Cache"))
	}
}

// A write that lands while a miss is still reading must not leave the
// pre-write result behind for later requests.
func TestResponseCacheDropsResultComputedBeforeInvalidate(t *testing.T) {
	_, rdb := newMiniRedis(t)
	rc := NewResponseCache(testCacheConfig(), rdb)

	calls := 0
	e := echo.New()
	e.GET("/cities", func(c echo.Context) error {
		calls++
		if calls == 1 {
			if err := rc.Invalidate(c.Request().Context(), "/cities"); err != nil {
				return err
			}
		}
		return c.String(http.StatusOK, strconv.Itoa(calls))
	}, rc.Middleware())

	if rec := get(e, "/cities"); rec.Body.String() != "1" {
		t.Fatalf("first body %q", rec.Body.String())
	}
	rec := get(e, "/cities")
	if rec.Header().Get("X-Cache") != "MISS" || rec.Body.String() != "2" {
		t.Errorf("after concurrent write: X-Cache %q, body %q; want MISS, 2", rec.Header().Get("X-Cache"), rec.Body.String())
	}
	rec = get(e, "/cities")
	if rec.Header().Get("X-Cache") != "HIT" || rec.Body.String() != "2" {
		t.Errorf("third: X-Cache %q, body %q; want HIT, 2", rec.Header().Get("X-Cache"), rec.Body.String())
	}
}

func TestResponseCacheHitCarriesFreshRateLimitHeaders(t *testing.T) {
	_, rdb := newMiniRedis(t)
	rc := NewResponseCache(testCacheConfig(), rdb)
	limit := NewRateLimiter(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       5,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            10 * time.Minute,
		Prefix:         "rl",
	}, rdb)

	e := echo.New()
	e.Use(RequestID())
	e.Use(limit)
	e.GET("/lang_roles", func(c echo.Context) error {
		return c.JSON(http.StatusOK, []string{"English"})
	}, rc.Middleware())

	first := get(e, "/lang_roles")
	hit := get(e, "/lang_roles")
	if hit.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("X-Cache = %q", hit.Header().Get("X-Cache"))
	}
	if got := hit.Header().Values("X-RateLimit-Remaining"); len(got) != 1 || got[0] != "3" {
		t.Errorf("X-RateLimit-Remaining = %v, want [3]", got)
	}
	if got := hit.Header().Values("X-RateLimit-Limit"); len(got) != 1 {
		t.Errorf("X-RateLimit-Limit = %v", got)
	}
	if got := hit.Header().Values(RequestIDHeader); len(got) != 1 || got[0] == first.Header().Get(RequestIDHeader) {
		t.Errorf("%s = %v, should be this request's id only", RequestIDHeader, got)
	}
}

func TestRedisRateLimiterRejectsWithRetryAfter(t *testing.T) {
	mr, rdb := newMiniRedis(t)
	limit := NewRateLimiter(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}, rdb)

	e := echo.New()
	e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "Hello") }, limit)

	for i, wantRemaining := range []string{"1", "0"} {
		rec := get(e, "/")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != wantRemaining {
			t.Errorf("request %d: remaining %q, want %q", i+1, got, wantRemaining)
		}
	}

	rec := get(e, "/")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", rec.Code)
	}
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || secs <= 0 || secs > 3600 {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if !strings.Contains(rec.Body.String(), "rate limit exceeded") {
		t.Errorf("body %q", rec.Body.String())
	}
	if !mr.Exists("rl:ip:192.0.2.1") {
		t.Errorf("bucket key missing: %v", mr.Keys())
	}
}
