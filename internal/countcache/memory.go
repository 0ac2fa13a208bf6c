package countcache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is an in-process Backend with per-entry TTL and LRU eviction
type Memory struct {
	lru *expirable.LRU[string, int64]
}

// NewMemory creates a memory backend holding at most size entries
func NewMemory(size int, ttl time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, int64](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (int64, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, value int64) error {
	m.lru.Add(key, value)
	return nil
}

func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	for _, key := range m.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			m.lru.Remove(key)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}

var _ Backend = (*Memory)(nil)
