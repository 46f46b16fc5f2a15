package hashlet

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/mod/semver"

	"github.com/hash-lang/hash/core/invariant"
)

// Fetcher materializes a bundle for (repoRef, revision) and returns the
// local directory holding its hashlet.json. Fetch may hit the network or
// the filesystem; the resolver never retries a failed fetch.
type Fetcher interface {
	Fetch(ctx context.Context, repoRef, revision string) (string, error)
}

const indexFile = "index.cbor"

type indexEntry struct {
	Name      string    `cbor:"name"`
	Revision  string    `cbor:"revision"`
	File      string    `cbor:"file"` // relative to the cache dir
	FetchedAt time.Time `cbor:"fetched_at"`
}

type cacheIndex struct {
	Entries map[string]indexEntry `cbor:"entries"`
}

// flight is one in-progress fetch; waiters block on done.
type flight struct {
	done chan struct{}
	path string
	err  error
}

// Resolver turns (identifier, revision) pairs into cached local source
// paths. Concurrent requests for the same key collapse to a single fetch;
// completed fetches are recorded in a cbor index so the cache survives
// process restarts.
type Resolver struct {
	fetcher Fetcher
	dir     string
	enc     cbor.EncMode

	mu      sync.Mutex
	index   cacheIndex
	flights map[string]*flight
}

// NewResolver opens (or creates) the cache directory and loads its index.
func NewResolver(fetcher Fetcher, cacheDir string) (*Resolver, error) {
	invariant.NotNil(fetcher, "fetcher")

	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		fetcher: fetcher,
		dir:     cacheDir,
		enc:     enc,
		index:   cacheIndex{Entries: make(map[string]indexEntry)},
		flights: make(map[string]*flight),
	}
	if err := r.loadIndex(); err != nil {
		return nil, err
	}
	return r, nil
}

// Resolve returns the cached local path of the bundle's source file,
// fetching and validating it on first use. The path is stable for the life
// of the cache directory.
func (r *Resolver) Resolve(ctx context.Context, identifier, revision string) (string, error) {
	if !semver.IsValid("v" + revision) {
		return "", fmt.Errorf("hashlet %s: revision %q is not a valid semantic version", identifier, revision)
	}
	key := cacheKey(identifier, revision)

	r.mu.Lock()
	if entry, ok := r.index.Entries[key]; ok {
		path := filepath.Join(r.dir, entry.File)
		if _, err := os.Stat(path); err == nil {
			r.mu.Unlock()
			return path, nil
		}
		// The cached file vanished underneath us; refetch.
		delete(r.index.Entries, key)
	}
	if f, ok := r.flights[key]; ok {
		r.mu.Unlock()
		select {
		case <-f.done:
			return f.path, f.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	r.flights[key] = f
	r.mu.Unlock()

	f.path, f.err = r.fetchInto(ctx, key, identifier, revision)

	r.mu.Lock()
	delete(r.flights, key)
	if f.err == nil {
		r.index.Entries[key] = indexEntry{
			Name:      identifier,
			Revision:  revision,
			File:      filepath.Base(f.path),
			FetchedAt: time.Now().UTC(),
		}
		if err := r.saveIndex(); err != nil {
			f.err = fmt.Errorf("hashlet %s: write cache index: %w", identifier, err)
		}
	}
	r.mu.Unlock()
	close(f.done)

	return f.path, f.err
}

// fetchInto runs one fetch-validate-copy cycle for a cache key.
func (r *Resolver) fetchInto(ctx context.Context, key, identifier, revision string) (string, error) {
	dir, err := r.fetcher.Fetch(ctx, identifier, revision)
	if err != nil {
		return "", fmt.Errorf("hashlet %s@%s: %w", identifier, revision, err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "hashlet.json"))
	if err != nil {
		return "", fmt.Errorf("hashlet %s@%s: %w", identifier, revision, err)
	}
	m, err := ParseManifest(raw)
	if err != nil {
		return "", fmt.Errorf("hashlet %s@%s: %w", identifier, revision, err)
	}
	if m.Name != identifier || m.Revision != revision {
		return "", fmt.Errorf("hashlet %s@%s: bundle manifest says %s@%s", identifier, revision, m.Name, m.Revision)
	}

	src, err := os.ReadFile(filepath.Join(dir, m.Source))
	if err != nil {
		return "", fmt.Errorf("hashlet %s@%s: %w", identifier, revision, err)
	}
	path := filepath.Join(r.dir, key+".hash")
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return "", fmt.Errorf("hashlet %s@%s: cache write: %w", identifier, revision, err)
	}
	return path, nil
}

func (r *Resolver) loadIndex() error {
	raw, err := os.ReadFile(filepath.Join(r.dir, indexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cache index: %w", err)
	}
	if err := cbor.Unmarshal(raw, &r.index); err != nil {
		return fmt.Errorf("decode cache index: %w", err)
	}
	if r.index.Entries == nil {
		r.index.Entries = make(map[string]indexEntry)
	}
	return nil
}

// saveIndex writes the index; callers hold r.mu.
func (r *Resolver) saveIndex() error {
	raw, err := r.enc.Marshal(r.index)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.dir, indexFile), raw, 0o644)
}

// cacheKey addresses a bundle by identifier and revision.
func cacheKey(identifier, revision string) string {
	sum := blake2b.Sum256([]byte(identifier + "@" + revision))
	return hex.EncodeToString(sum[:16])
}
