// Package result holds the state record shared by acquisition, classification and presentation.
package result

import (
	"sync"
	"time"

	"github.com/example/snapclassify/internal/media"
)

// Source identifies how the current image was acquired.
type Source string

const (
	SourceNone   Source = ""
	SourceFile   Source = "file"
	SourceCamera Source = "camera"
)

// Snapshot is an immutable copy of the state record. Version increases with every
// applied transition.
type Snapshot struct {
	Image       string       `json:"image,omitempty"`
	MIMEType    string       `json:"mime_type,omitempty"`
	Source      Source       `json:"source,omitempty"`
	Predictions []Prediction `json:"predictions"`
	Loading     bool         `json:"loading"`
	Token       uint64       `json:"token"`
	Version     uint64       `json:"version"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Top returns the rank 1 prediction.
func (s Snapshot) Top() (Prediction, bool) {
	if len(s.Predictions) == 0 {
		return Prediction{}, false
	}
	return s.Predictions[0], true
}

// Model is the state record. It changes only through Acquire, Begin, Succeed and Fail.
// Observers may receive snapshots of concurrent transitions out of order; Version orders them.
type Model struct {
	mu          sync.RWMutex
	image       media.Image
	source      Source
	predictions []Prediction
	loading     bool
	seq         uint64
	latest      uint64
	version     uint64
	updatedAt   time.Time
	observers   []func(Snapshot)
	now         func() time.Time
}

// NewModel returns an empty state record.
func NewModel() *Model {
	return &Model{now: time.Now}
}

// OnChange registers fn to receive a snapshot after every applied transition.
func (m *Model) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Acquire replaces the current image, clears any previous result and returns the
// token a classification of this image must carry. Tokens issued earlier become stale.
func (m *Model) Acquire(source Source, img media.Image) uint64 {
	var token uint64
	m.mutate(func() bool {
		m.image = img
		m.source = source
		m.predictions = nil
		m.seq++
		m.latest = m.seq
		m.loading = false
		token = m.latest
		return true
	})
	return token
}

// Begin raises the loading flag for token. It returns false when a newer image has
// been acquired since token was issued.
func (m *Model) Begin(token uint64) bool {
	return m.mutate(func() bool {
		if token != m.latest {
			return false
		}
		m.loading = true
		return true
	})
}

// Succeed publishes predictions for token. It returns false, leaving the record untouched,
// when token has been superseded.
func (m *Model) Succeed(token uint64, preds []Prediction) bool {
	return m.mutate(func() bool {
		if token != m.latest {
			return false
		}
		m.predictions = append([]Prediction(nil), preds...)
		m.loading = false
		return true
	})
}

// Fail clears the loading flag for token. Stale tokens leave the flag of the newer request alone.
func (m *Model) Fail(token uint64) bool {
	return m.mutate(func() bool {
		if token != m.latest {
			return false
		}
		m.loading = false
		return true
	})
}

// Snapshot returns a copy of the current state.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Model) mutate(fn func() bool) bool {
	m.mu.Lock()
	if !fn() {
		m.mu.Unlock()
		return false
	}
	m.version++
	m.updatedAt = m.now().UTC()
	snap := m.snapshotLocked()
	observers := append([]func(Snapshot){}, m.observers...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
	return true
}

func (m *Model) snapshotLocked() Snapshot {
	return Snapshot{
		Image:       m.image.DataURL(),
		MIMEType:    m.image.MIMEType(),
		Source:      m.source,
		Predictions: append([]Prediction{}, m.predictions...),
		Loading:     m.loading,
		Token:       m.latest,
		Version:     m.version,
		UpdatedAt:   m.updatedAt,
	}
}
