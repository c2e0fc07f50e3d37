// Package subscriptions loads feed subscriptions from YAML files and syncs them
// into storage.
package subscriptions

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/rss-harvest/app/content"
)

const fileExt = ".yml"

type Cache struct {
	feedsDir string
	cache    map[string]*Subscription
	mu       sync.RWMutex
}

func NewCache(feedsDir string) *Cache {
	return &Cache{
		feedsDir: feedsDir,
		cache:    make(map[string]*Subscription),
	}
}

// Run reloads every *.yml file in the feeds directory, replacing what was
// cached before. A missing directory is not an error.
func (c *Cache) Run() error {
	loaded := make(map[string]*Subscription)

	if _, err := os.Stat(c.feedsDir); os.IsNotExist(err) {
		c.replace(loaded)
		return nil
	}

	files, err := filepath.Glob(filepath.Join(c.feedsDir, "*"+fileExt))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		sub, err := c.read(strings.TrimSuffix(filepath.Base(file), fileExt))
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}
		loaded[sub.File] = sub

		slog.Debug("Subscription loaded", "source", sub.Name, "enabled", sub.IsEnabled(), "content_mode", string(sub.ContentMode))
	}

	c.replace(loaded)
	return nil
}

// Load reads a single subscription file and caches it.
func (c *Cache) Load(file string) (*Subscription, error) {
	sub, err := c.read(file)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[sub.File] = sub

	return sub, nil
}

// Subscriptions returns all loaded subscriptions ordered by sort order, then file.
func (c *Cache) Subscriptions() []*Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*Subscription, 0, len(c.cache))
	for _, s := range c.cache {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].File < out[j].File
	})
	return out
}

func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func (c *Cache) Dir() string {
	return c.feedsDir
}

func (c *Cache) read(file string) (*Subscription, error) {
	path := filepath.Join(c.feedsDir, file+fileExt)
	sub, err := c.parse(path)
	if err != nil {
		return nil, err
	}

	sub.File = file
	if sub.Name == "" {
		sub.Name = file
	}

	if err := validateSubscription(sub); err != nil {
		return nil, fmt.Errorf("invalid subscription %s: %w", path, err)
	}
	sub.ContentMode = content.ParseMode(string(sub.ContentMode))

	return sub, nil
}

func (c *Cache) parse(path string) (*Subscription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sub Subscription
	if err := yaml.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	sub.URL = strings.TrimSpace(sub.URL)
	sub.ContentMode = content.Mode(strings.ToLower(strings.TrimSpace(string(sub.ContentMode))))
	return &sub, nil
}

func (c *Cache) replace(loaded map[string]*Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = loaded
}
