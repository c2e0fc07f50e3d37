package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			hits.Add(1)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
		_, _ = w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRobotsChecker_RespectsRules(t *testing.T) {
	srv, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n\nUser-agent: BadBot\nDisallow: /\n")
	c, _ := newTestClient(Config{UserAgent: "RSS Harvest/1.0"})
	checker := NewRobotsChecker(c, "RSS Harvest/1.0", 0, 0)
	ctx := context.Background()

	assert.True(t, checker.Allowed(ctx, srv.URL+"/news/story"))
	assert.False(t, checker.Allowed(ctx, srv.URL+"/private/page"))
	assert.True(t, checker.Allowed(ctx, srv.URL+"/"))
	assert.Equal(t, int32(1), hits.Load())

	bad := NewRobotsChecker(c, "BadBot/2.0 (+https://bad.example)", 0, 0)
	assert.False(t, bad.Allowed(ctx, srv.URL+"/news/story"))
}

func TestRobotsChecker_StatusCodes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		allowed bool
	}{
		{"missing file allows everything", http.StatusNotFound, true},
		{"server error disallows everything", http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := robotsServer(t, tt.status, "")
			c, _ := newTestClient(Config{UserAgent: "test"})
			checker := NewRobotsChecker(c, "test", 0, 0)
			assert.Equal(t, tt.allowed, checker.Allowed(context.Background(), srv.URL+"/article"))
		})
	}
}

func TestRobotsChecker_FailsOpenWhenUnreachable(t *testing.T) {
	srv, _ := robotsServer(t, http.StatusOK, "")
	target := srv.URL + "/article"
	srv.Close()

	c, _ := newTestClient(Config{UserAgent: "test", Defaults: Options{Timeout: time.Second}})
	checker := NewRobotsChecker(c, "test", 0, 0)
	assert.True(t, checker.Allowed(context.Background(), target))
	assert.False(t, checker.Allowed(context.Background(), "::not a url"))
}
