// Package session keeps each caller's pending import batch between preview
// and confirm.
//
// A caller owns at most one batch. Uploading again replaces it, confirming
// takes it out, and an idle batch expires after the TTL.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/divimport/internal/dividend"
	"github.com/patrickmn/go-cache"
)

// ErrNoBatch is returned when the owner has no batch awaiting confirmation.
var ErrNoBatch = errors.New("no import batch awaiting confirmation")

const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

// Store maps session owners to their pending batch.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration

	// mu makes Take atomic; go-cache has no get-and-delete.
	mu sync.Mutex
}

// NewStore creates a store whose entries expire ttl after their last write.
func NewStore(ttl, cleanupInterval time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &Store{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Put stores b for owner, replacing any earlier batch.
func (s *Store) Put(owner string, b *dividend.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(owner, b, s.ttl)
}

// Get returns the owner's batch without removing it.
func (s *Store) Get(owner string) (*dividend.Batch, error) {
	v, ok := s.cache.Get(owner)
	if !ok {
		return nil, ErrNoBatch
	}
	return v.(*dividend.Batch), nil
}

// Take removes and returns the owner's batch. Two concurrent confirms for
// the same owner cannot both receive it.
func (s *Store) Take(owner string) (*dividend.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.cache.Get(owner)
	if !ok {
		return nil, ErrNoBatch
	}
	s.cache.Delete(owner)
	return v.(*dividend.Batch), nil
}

// Restore puts back a batch taken for a confirm that failed, unless the
// owner uploaded a newer one in the meantime.
func (s *Store) Restore(owner string, b *dividend.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(owner, b, s.ttl)
}

// Delete discards the owner's batch.
func (s *Store) Delete(owner string) {
	s.cache.Delete(owner)
}

// Len reports how many batches are held, expired ones included until the
// next cleanup.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
