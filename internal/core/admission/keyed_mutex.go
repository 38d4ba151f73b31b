package admission

import (
	"context"
	"sync"
)

// KeyedMutex はキーごとの排他ロックです。待機はコンテキストで打ち切れます。
// 保持者と待機者がいなくなったキーのエントリは削除されます。
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex は KeyedMutex を生成します。
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock は key のロックを取得し、解放関数を返します。ctx が先に終了した場合はそのエラーを返します。
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			m.release(key, e)
		})
	}, nil
}

// Len は保持中または待機中のキーの数を返します。
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *KeyedMutex) release(key string, e *keyedEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}
