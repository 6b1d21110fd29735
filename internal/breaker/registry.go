package breaker

import (
	"sort"
	"sync"
)

// Registry хранит по одному Breaker на имя зависимости.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry создаёт реестр; cfg применяется ко всем создаваемым breaker'ам.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
	}
}

// Get возвращает breaker зависимости, создавая его при первом обращении.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.cfg)
	r.breakers[name] = b
	return b
}

// Stats возвращает статистику всех breaker'ов, отсортированную по имени.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	stats := make([]Stats, 0, len(breakers))
	for _, b := range breakers {
		stats = append(stats, b.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
