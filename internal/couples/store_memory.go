package couples

import (
	"context"
	"sync"

	id "attune/pkg/domain"
	"attune/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	links map[id.CoupleID]Link
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{links: make(map[id.CoupleID]Link)}
}

func (s *InMemoryStore) Save(_ context.Context, link Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.ID]; exists {
		return sentinel.ErrConflict
	}
	s.links[link.ID] = link
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, link Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[link.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.links[link.ID] = link
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, coupleID id.CoupleID) (Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link, ok := s.links[coupleID]
	if !ok {
		return Link{}, sentinel.ErrNotFound
	}
	return link, nil
}

func (s *InMemoryStore) ListByTherapist(_ context.Context, therapistID id.TherapistID) ([]Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var links []Link
	for _, link := range s.links {
		if link.TherapistID == therapistID {
			links = append(links, link)
		}
	}
	return links, nil
}
