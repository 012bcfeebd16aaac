package backend

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/KafClaw/taskclaw/internal/board"
)

// DeveloperCache holds the last developer listing for a bounded time. With a
// file set, the listing also survives across processes.
type DeveloperCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	users   []board.User
	fetched time.Time
	valid   bool
	file    string
	now     func() time.Time
}

type developerSnapshot struct {
	FetchedAt time.Time    `json:"fetchedAt"`
	Users     []board.User `json:"users"`
}

// NewDeveloperCache creates a cache. A non-positive ttl keeps entries until
// Invalidate is called.
func NewDeveloperCache(ttl time.Duration) *DeveloperCache {
	return &DeveloperCache{ttl: ttl, now: time.Now}
}

// PersistTo makes the cache read and write its listing at path.
func (d *DeveloperCache) PersistTo(path string) {
	d.mu.Lock()
	d.file = path
	d.mu.Unlock()
}

// Get returns the cached listing or calls fetch to refresh it. Failed fetches
// are not cached.
func (d *DeveloperCache) Get(ctx context.Context, fetch func(context.Context) ([]board.User, error)) ([]board.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.valid {
		d.loadFile()
	}
	if d.valid && d.fresh() {
		return append([]board.User(nil), d.users...), nil
	}
	users, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	d.users = users
	d.fetched = d.now()
	d.valid = true
	d.saveFile()
	return append([]board.User(nil), users...), nil
}

// Invalidate forces the next Get to fetch.
func (d *DeveloperCache) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.valid = false
	d.users = nil
	if d.file != "" {
		if err := os.Remove(d.file); err != nil && !os.IsNotExist(err) {
			slog.Warn("DeveloperCache: remove cache file", "path", d.file, "error", err)
		}
	}
}

func (d *DeveloperCache) fresh() bool {
	return d.ttl <= 0 || d.now().Sub(d.fetched) < d.ttl
}

func (d *DeveloperCache) loadFile() {
	if d.file == "" {
		return
	}
	data, err := os.ReadFile(d.file)
	if err != nil {
		return
	}
	var snap developerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("DeveloperCache: ignoring unreadable cache file", "path", d.file, "error", err)
		return
	}
	d.users = snap.Users
	d.fetched = snap.FetchedAt
	d.valid = true
}

func (d *DeveloperCache) saveFile() {
	if d.file == "" {
		return
	}
	data, err := json.Marshal(developerSnapshot{FetchedAt: d.fetched, Users: d.users})
	if err == nil {
		if err = os.MkdirAll(filepath.Dir(d.file), 0o700); err == nil {
			err = os.WriteFile(d.file, data, 0o600)
		}
	}
	if err != nil {
		slog.Warn("DeveloperCache: write cache file", "path", d.file, "error", err)
	}
}
