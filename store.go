package paranormal

import (
	"fmt"
	"sync"
)

// DefaultIndexOfRefraction is the refraction of a new document.
const DefaultIndexOfRefraction float32 = 0.8

// DocumentSettings holds the canvas configuration of a document and owns
// its root layer. Width and Height do not change after creation.
type DocumentSettings struct {
	Width         int
	Height        int
	BaseImagePath string // empty when the document has no base image
	Root          *Layer
}

// Size returns the canvas size.
func (s *DocumentSettings) Size() Size {
	return Size{Width: s.Width, Height: s.Height}
}

// Refraction is the global index of refraction used when shading the
// normal map.
type Refraction struct {
	IndexOfRefraction float32
}

// Store persists document settings and refraction.
//
// The document keeps the objects it passes to Insert, or receives from a
// fetch, and edits them in place. A Store must therefore hold on to those
// pointers (or save them when it flushes), not copies taken at Insert.
//
// FetchSettings returns nil settings and a nil error for a store that holds
// no document yet; the document then initializes defaults and calls Insert.
type Store interface {
	FetchSettings() (*DocumentSettings, error)
	FetchRefraction() (*Refraction, error)
	Insert(settings *DocumentSettings, refraction *Refraction) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu         sync.Mutex
	settings   *DocumentSettings
	refraction *Refraction

	// FetchErr, if set, is returned by every fetch.
	FetchErr error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// FetchSettings implements Store.
func (s *MemoryStore) FetchSettings() (*DocumentSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	return s.settings, nil
}

// FetchRefraction implements Store.
func (s *MemoryStore) FetchRefraction() (*Refraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	return s.refraction, nil
}

// Insert implements Store.
func (s *MemoryStore) Insert(settings *DocumentSettings, refraction *Refraction) error {
	if settings == nil {
		return fmt.Errorf("paranormal: insert nil settings")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.refraction = refraction
	return nil
}
