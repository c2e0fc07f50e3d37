package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	healthy map[string]bool
	probed  []string
}

func (f *fakeProber) Head(_ context.Context, rawURL string, _ time.Duration) error {
	f.probed = append(f.probed, rawURL)
	if f.healthy[rawURL] {
		return nil
	}
	return errors.New("unreachable")
}

func TestResolve_PassThrough(t *testing.T) {
	prober := &fakeProber{}
	r := NewResolver(prober, []string{"https://a.example.com"})

	got, err := r.Resolve(context.Background(), "https://example.com/feed.xml")

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/feed.xml", got)
	assert.Empty(t, prober.probed)
}

func TestResolve_FirstHealthyWins(t *testing.T) {
	prober := &fakeProber{healthy: map[string]bool{
		"https://b.example.com": true,
		"https://c.example.com": true,
	}}
	r := NewResolver(prober, []string{"https://a.example.com/", "https://b.example.com", "https://c.example.com"})

	got, err := r.Resolve(context.Background(), "rsshub://github/issue/golang/go")

	require.NoError(t, err)
	assert.Equal(t, "https://b.example.com/github/issue/golang/go", got)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, prober.probed)
}

func TestResolve_FallbackWhenAllFail(t *testing.T) {
	prober := &fakeProber{}
	r := NewResolver(prober, []string{"https://a.example.com", "https://b.example.com"})

	got, err := r.Resolve(context.Background(), "RSSHUB:///bbc/world")

	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com/bbc/world", got)
}

func TestInstance_Cached(t *testing.T) {
	prober := &fakeProber{healthy: map[string]bool{"https://a.example.com": true}}
	r := NewResolver(prober, []string{"https://a.example.com"})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	_, err := r.Instance(context.Background())
	require.NoError(t, err)
	_, err = r.Instance(context.Background())
	require.NoError(t, err)
	assert.Len(t, prober.probed, 1)

	now = now.Add(CacheTTL + time.Second)
	_, err = r.Instance(context.Background())
	require.NoError(t, err)
	assert.Len(t, prober.probed, 2)
}

func TestInstance_NoCandidates(t *testing.T) {
	r := NewResolver(&fakeProber{}, nil)

	_, err := r.Resolve(context.Background(), "rsshub://x")

	assert.Error(t, err)
}
