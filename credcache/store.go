// Package credcache persists opaque post-login credential blobs ("cookie
// blobs") in two tiers: a durable local directory, authoritative by
// presence, and an optional Redis tier bounded by a TTL.
//
// The cache is never a source of truth by itself (whichever tier answered
// last wins) and the remote tier is strictly best-effort: every remote
// failure degrades to a local-only answer (miss on read, no-op on write and
// delete). Nothing here ever fails a login.
package credcache

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/perchlabs/perch/internal"
)

// BlobRef names a local credential blob. The file may not exist; callers
// check Exists rather than treating absence as an error, because a fresh
// login simply has no cookies yet.
type BlobRef struct {
	path string
}

// Path is the local filesystem location of the blob.
func (r BlobRef) Path() string { return r.path }

// Exists reports whether the blob is present at the local tier.
func (r BlobRef) Exists() bool {
	info, err := os.Stat(r.path)
	return err == nil && !info.IsDir()
}

// Store is the two-tier credential cache. A nil Redis client disables the
// remote tier entirely, which is a supported configuration.
type Store struct {
	redis     *redis.Client
	dir       string
	suffix    string
	namespace string
	ttl       time.Duration

	mu     sync.Mutex
	mirror map[string]string // in-process read mirror of blobs seen this run
}

// NewStore creates a Store rooted at dir. The directory is created eagerly;
// a failure there is logged and surfaces later as blobs that never exist.
func NewStore(redisClient *redis.Client, dir, suffix, namespace string, ttl time.Duration) *Store {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("credcache: create dir %s: %v", dir, err)
	}

	return &Store{
		redis:     redisClient,
		dir:       dir,
		suffix:    suffix,
		namespace: namespace,
		ttl:       ttl,
		mirror:    make(map[string]string),
	}
}

func (s *Store) key(identity string) string {
	return s.namespace + ":" + internal.NormalizeIdentity(identity) + s.suffix
}

func (s *Store) localPath(identity string) string {
	return filepath.Join(s.dir, internal.NormalizeIdentity(identity)+s.suffix)
}

// Load ensures the blob is available locally, fetching from the remote tier
// when the local copy is missing. Cache-aside on read: a remote hit is
// written through to the local tier so later loads stay local. The returned
// ref may point at a nonexistent file.
func (s *Store) Load(ctx context.Context, identity string) BlobRef {
	ref := BlobRef{path: s.localPath(identity)}

	if ref.Exists() {
		content, err := os.ReadFile(ref.path)
		if err != nil {
			log.Printf("credcache: read %s: %v", ref.path, err)
			return ref
		}
		s.mirrorSet(s.key(identity), string(content))
		return ref
	}

	if s.redis == nil {
		return ref
	}

	data, err := s.redis.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("credcache: redis get failed: %v", err)
		}
		return ref
	}

	if err := os.WriteFile(ref.path, data, 0o600); err != nil {
		log.Printf("credcache: write %s: %v", ref.path, err)
		return ref
	}
	s.mirrorSet(s.key(identity), string(data))
	return ref
}

// Save pushes the local blob to the remote tier under the configured TTL.
// It requires the local copy to exist and is a no-op without a remote tier.
// When cleanupLocal is set, the local file is removed afterward regardless
// of the remote outcome; the remote copy (or nothing) is then the only
// record, trading durability for not keeping credentials on disk.
func (s *Store) Save(ctx context.Context, identity string, cleanupLocal bool) {
	if s.redis == nil {
		return
	}

	path := s.localPath(identity)
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("credcache: read %s: %v", path, err)
		}
		return
	}

	key := s.key(identity)
	if err := s.redis.Set(ctx, key, content, s.ttl).Err(); err != nil {
		log.Printf("credcache: redis set failed: %v", err)
	} else {
		s.mirrorSet(key, string(content))
	}

	if cleanupLocal {
		s.removeLocal(path)
	}
}

// Delete removes the blob at both tiers, best-effort: each tier's failure is
// logged and otherwise ignored.
func (s *Store) Delete(ctx context.Context, identity string) {
	s.removeLocal(s.localPath(identity))

	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, s.key(identity)).Err(); err != nil {
		log.Printf("credcache: redis delete failed: %v", err)
	}

	s.mu.Lock()
	delete(s.mirror, s.key(identity))
	s.mu.Unlock()
}

// Mirror returns the in-process copy of the blob last seen for identity.
// Read-only convenience for diagnostics; the file and the remote tier stay
// authoritative.
func (s *Store) Mirror(identity string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.mirror[s.key(identity)]
	return content, ok
}

func (s *Store) mirrorSet(key, content string) {
	s.mu.Lock()
	s.mirror[key] = content
	s.mu.Unlock()
}

func (s *Store) removeLocal(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("credcache: delete %s: %v", path, err)
	}
}
