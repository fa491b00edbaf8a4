package paranormal

import (
	"sync"

	"github.com/google/uuid"
)

// ChangeKind identifies the kind of document mutation carried by a Change.
type ChangeKind uint8

const (
	ChangeLayerAdded ChangeKind = iota
	ChangeLayerRemoved
	ChangeLayerVisibility
	ChangeLayerRenamed
	ChangeLayerPixels
	ChangeSettings
	ChangeRefraction
)

var changeKindNames = [...]string{
	ChangeLayerAdded:      "LayerAdded",
	ChangeLayerRemoved:    "LayerRemoved",
	ChangeLayerVisibility: "LayerVisibility",
	ChangeLayerRenamed:    "LayerRenamed",
	ChangeLayerPixels:     "LayerPixels",
	ChangeSettings:        "Settings",
	ChangeRefraction:      "Refraction",
}

func (k ChangeKind) String() string {
	if int(k) < len(changeKindNames) {
		return changeKindNames[k]
	}
	return "Unknown"
}

// AffectsImage reports whether a change of this kind invalidates the
// composited normal image.
func (k ChangeKind) AffectsImage() bool {
	switch k {
	case ChangeLayerRenamed, ChangeRefraction:
		return false
	default:
		return true
	}
}

// Change describes one mutation of the document graph. LayerID is the zero
// UUID for document-wide changes.
type Change struct {
	Kind    ChangeKind
	LayerID uuid.UUID
}

// Signal is a typed event with any number of subscribers.
//
// Emit calls subscribers synchronously on the emitting goroutine, in
// subscription order. Subscribers may unsubscribe from within a callback.
type Signal[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber[T]
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it.
// The returned cancel function is idempotent.
func (s *Signal[T]) Subscribe(fn func(T)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Signal[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers v to every current subscriber.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn(v)
	}
}

// Len returns the number of subscribers.
func (s *Signal[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
