package store

import (
	"context"
	"fmt"
	"sync"

	"plexvoice/internal/core"
)

// MemoryStore keeps queues in process memory. Queues are lost on restart.
type MemoryStore struct {
	queues map[string]*core.QueueState
	mutex  sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		queues: make(map[string]*core.QueueState),
	}
}

func (ms *MemoryStore) Save(_ context.Context, state *core.QueueState) error {
	if err := state.Validate(); err != nil {
		return err
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.queues[state.ListenerID] = state.Clone()
	return nil
}

func (ms *MemoryStore) Get(_ context.Context, listenerID string) (*core.QueueState, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	state, exists := ms.queues[listenerID]
	if !exists {
		return nil, core.ErrNoQueue
	}
	return state.Clone(), nil
}

func (ms *MemoryStore) UpdateIndex(_ context.Context, listenerID string, index int) error {
	if err := validateIndex(index); err != nil {
		return err
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	state, exists := ms.queues[listenerID]
	if !exists {
		return core.ErrNoQueue
	}
	state.CurrentIndex = index
	return nil
}

func (ms *MemoryStore) Ping(context.Context) error { return nil }

func (ms *MemoryStore) Close() error { return nil }

func validateIndex(index int) error {
	if index < 0 {
		return core.NewError(core.KindValidation, "update index", fmt.Errorf("negative index %d", index))
	}
	return nil
}
