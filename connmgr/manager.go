// Package connmgr maps client identities to their live connections so the
// server can push to a client that registered itself earlier.
//
// The table is split into shards, each guarded by its own RWMutex, so
// registrations for unrelated identities never wait on each other.
package connmgr

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"mini-rpc-server/transport"
)

const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	conns map[string]transport.Conn
}

// Manager is safe for concurrent use.
type Manager struct {
	shards [shardCount]*shard
}

func NewManager() *Manager {
	m := &Manager{}
	for i := range m.shards {
		m.shards[i] = &shard{conns: make(map[string]transport.Conn)}
	}
	return m
}

func (m *Manager) shardFor(identity string) *shard {
	return m.shards[xxhash.Sum64String(identity)%shardCount]
}

// Put maps identity to conn, replacing any earlier connection.
func (m *Manager) Put(identity string, conn transport.Conn) {
	s := m.shardFor(identity)
	s.mu.Lock()
	s.conns[identity] = conn
	s.mu.Unlock()
}

// Get returns the connection registered for identity.
func (m *Manager) Get(identity string) (transport.Conn, bool) {
	s := m.shardFor(identity)
	s.mu.RLock()
	conn, ok := s.conns[identity]
	s.mu.RUnlock()
	return conn, ok
}

// Remove deletes identity only while it still maps to conn, so a connection
// going away never drops a newer registration.
func (m *Manager) Remove(identity string, conn transport.Conn) bool {
	s := m.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.conns[identity]; ok && cur == conn {
		delete(s.conns, identity)
		return true
	}
	return false
}

// RemoveConn deletes every identity that maps to conn and returns how many
// entries were dropped.
func (m *Manager) RemoveConn(conn transport.Conn) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for identity, cur := range s.conns {
			if cur == conn {
				delete(s.conns, identity)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of registered identities.
func (m *Manager) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.conns)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry until fn returns false. fn must not call
// back into the manager.
func (m *Manager) Range(fn func(identity string, conn transport.Conn) bool) {
	for _, s := range m.shards {
		s.mu.RLock()
		for identity, conn := range s.conns {
			if !fn(identity, conn) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}
