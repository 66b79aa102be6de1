package main

import (
	"sync"

	"github.com/example/snapclassify/internal/camera"
	"github.com/example/snapclassify/internal/result"
)

type statePublisher interface {
	PublishState(state interface{})
}

// liveState is the combined view pushed to websocket clients.
type liveState struct {
	publisher statePublisher

	mu     sync.Mutex
	camera camera.State
	result result.Snapshot
}

type liveStateMessage struct {
	Camera camera.State    `json:"camera"`
	Result result.Snapshot `json:"result"`
}

func newLiveState(publisher statePublisher) *liveState {
	return &liveState{publisher: publisher}
}

// setCamera may run under the camera session lock and must not call back into it.
func (l *liveState) setCamera(state camera.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.camera = state
	l.publishLocked()
}

// setResult ignores snapshots older than the one already published; observers of
// concurrent transitions can be delivered out of order.
func (l *liveState) setResult(snap result.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if snap.Version <= l.result.Version {
		return
	}
	l.result = snap
	l.publishLocked()
}

func (l *liveState) publishLocked() {
	l.publisher.PublishState(liveStateMessage{Camera: l.camera, Result: l.result})
}
