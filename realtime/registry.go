package realtime

import (
	"context"
	"sync"
)

// Registry tracks subscriptions per session so sign-out can close them all.
type Registry struct {
	hub Hub

	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewRegistry(hub Hub) *Registry {
	return &Registry{hub: hub, subs: make(map[string]map[*Subscription]struct{})}
}

func (r *Registry) Hub() Hub {
	return r.hub
}

func (r *Registry) Subscribe(ctx context.Context, owner string, f Filter) (*Subscription, error) {
	sub, err := r.hub.Subscribe(ctx, f)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.subs[owner] == nil {
		r.subs[owner] = make(map[*Subscription]struct{})
	}
	r.subs[owner][sub] = struct{}{}
	r.mu.Unlock()

	sub.addCloseHook(func() { r.forget(owner, sub) })
	return sub, nil
}

func (r *Registry) forget(owner string, sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.subs[owner]
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, owner)
	}
}

// CloseOwner closes every subscription opened by owner and reports how many there were.
func (r *Registry) CloseOwner(owner string) int {
	r.mu.Lock()
	set := r.subs[owner]
	delete(r.subs, owner)
	r.mu.Unlock()

	for sub := range set {
		sub.Close()
	}
	return len(set)
}

// Count reports the open subscriptions for owner.
func (r *Registry) Count(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[owner])
}
