package capture

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Artifact is one frozen frame, encoded and ready for analysis
type Artifact struct {
	ID         string
	Width      int
	Height     int
	Data       []byte
	MIMEType   string
	CapturedAt time.Time

	store    *Store
	released atomic.Bool
}

// Ref returns the access handle under which the artifact is served
func (a *Artifact) Ref() string {
	if a == nil {
		return ""
	}
	return a.ID
}

// Release revokes the artifact's access handle. Safe to call more than once.
func (a *Artifact) Release() {
	if a == nil || !a.released.CompareAndSwap(false, true) {
		return
	}
	if a.store != nil {
		a.store.cache.Delete(a.ID)
	}
}

// Released reports whether the access handle has been revoked
func (a *Artifact) Released() bool {
	return a != nil && a.released.Load()
}

type storedImage struct {
	data     []byte
	mimeType string
}

// Store holds the bytes of live artifacts under their access handles.
// Entries expire after ttl even if never released.
type Store struct {
	cache *cache.Cache
}

// NewStore creates an artifact store
func NewStore(ttl time.Duration) *Store {
	return &Store{cache: cache.New(ttl, ttl)}
}

func (s *Store) register(data []byte, mimeType string) string {
	id := uuid.New().String()
	s.cache.SetDefault(id, storedImage{data: data, mimeType: mimeType})
	return id
}

// Get returns the image bytes and MIME type for an access handle
func (s *Store) Get(id string) ([]byte, string, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, "", false
	}
	img := v.(storedImage)
	return img.data, img.mimeType, true
}

// Len returns the number of live artifacts
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
