// Package mirror resolves rsshub:// subscription URLs to a live mirror instance.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	Scheme       = "rsshub://"
	ProbeTimeout = 5 * time.Second
	CacheTTL     = 30 * time.Minute
)

type Prober interface {
	Head(ctx context.Context, rawURL string, timeout time.Duration) error
}

type Resolver struct {
	prober     Prober
	candidates []string
	fallback   string
	ttl        time.Duration
	now        func() time.Time

	mu       sync.Mutex
	chosen   string
	chosenAt time.Time
}

// NewResolver probes candidates in order; the first one is also the fallback
// used when every probe fails.
func NewResolver(prober Prober, candidates []string) *Resolver {
	cleaned := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c = strings.TrimRight(strings.TrimSpace(c), "/"); c != "" {
			cleaned = append(cleaned, c)
		}
	}

	r := &Resolver{
		prober:     prober,
		candidates: cleaned,
		ttl:        CacheTTL,
		now:        time.Now,
	}
	if len(cleaned) > 0 {
		r.fallback = cleaned[0]
	}
	return r
}

func IsIndirect(rawURL string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(rawURL)), Scheme)
}

// Resolve returns rawURL unchanged unless it uses the indirection scheme.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	if !IsIndirect(rawURL) {
		return rawURL, nil
	}

	instance, err := r.Instance(ctx)
	if err != nil {
		return "", err
	}

	route := strings.TrimSpace(rawURL)[len(Scheme):]
	return instance + "/" + strings.TrimLeft(route, "/"), nil
}

// Instance returns the cached mirror or probes for a new one.
func (r *Resolver) Instance(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.chosen != "" && r.now().Sub(r.chosenAt) < r.ttl {
		return r.chosen, nil
	}
	if len(r.candidates) == 0 {
		return "", fmt.Errorf("no mirror instances configured")
	}

	chosen := r.fallback
	for _, c := range r.candidates {
		if err := r.prober.Head(ctx, c, ProbeTimeout); err != nil {
			slog.Debug("Mirror probe failed", "instance", c, "error", err)
			continue
		}
		chosen = c
		break
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	slog.Info("Mirror instance selected", "instance", chosen)
	r.chosen = chosen
	r.chosenAt = r.now()
	return chosen, nil
}
