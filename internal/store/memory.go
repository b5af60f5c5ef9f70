package store

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	key       string
	data      []byte
	createdAt time.Time
	expiresAt time.Time
}

// Memory is an in-process LRU store with per-entry TTL.
type Memory struct {
	capacity  int
	items     map[string]*list.Element
	evictList *list.List
	mu        sync.Mutex
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{
		capacity:  capacity,
		items:     make(map[string]*list.Element),
		evictList: list.New(),
	}
}

func (m *Memory) Get(key string, value interface{}) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return false, 0
	}

	item := elem.Value.(*memoryItem)
	if time.Now().After(item.expiresAt) {
		m.removeElement(elem)
		return false, 0
	}

	if err := json.Unmarshal(item.data, value); err != nil {
		m.removeElement(elem)
		return false, 0
	}

	m.evictList.MoveToFront(elem)
	return true, time.Since(item.createdAt)
}

func (m *Memory) Set(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if elem, ok := m.items[key]; ok {
		item := elem.Value.(*memoryItem)
		item.data = data
		item.createdAt = now
		item.expiresAt = now.Add(ttl)
		m.evictList.MoveToFront(elem)
		return nil
	}

	elem := m.evictList.PushFront(&memoryItem{
		key:       key,
		data:      data,
		createdAt: now,
		expiresAt: now.Add(ttl),
	})
	m.items[key] = elem

	if m.evictList.Len() > m.capacity {
		m.removeOldest()
	}
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
	return nil
}

func (m *Memory) CleanExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element

	for elem := m.evictList.Back(); elem != nil; elem = elem.Prev() {
		if now.After(elem.Value.(*memoryItem).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}

	for _, elem := range toRemove {
		m.removeElement(elem)
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element)
	m.evictList.Init()
	return nil
}

func (m *Memory) removeOldest() {
	if elem := m.evictList.Back(); elem != nil {
		m.removeElement(elem)
	}
}

func (m *Memory) removeElement(elem *list.Element) {
	m.evictList.Remove(elem)
	delete(m.items, elem.Value.(*memoryItem).key)
}
