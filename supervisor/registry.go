package supervisor

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Store persists subscribed tokens
type Store interface {
	SaveSubscriber(token string) error
	DeleteSubscriber(token string) error
	ListSubscribers() ([]string, error)
}

// Registry is the set of tokens traded by /trade, in subscription order
type Registry struct {
	mu     sync.RWMutex
	tokens []string
	index  map[string]struct{}
	store  Store
}

// NewRegistry loads persisted tokens, then adds seed; store may be nil
func NewRegistry(store Store, seed []string) (*Registry, error) {
	r := &Registry{index: make(map[string]struct{}), store: store}

	if store != nil {
		saved, err := store.ListSubscribers()
		if err != nil {
			return nil, fmt.Errorf("load subscribers: %w", err)
		}
		for _, t := range saved {
			r.add(t)
		}
	}
	for _, t := range seed {
		if _, err := r.Subscribe(t); err != nil {
			return nil, err
		}
	}

	log.Info().Int("subscribers", r.Len()).Msg("📋 Subscriber registry loaded")
	return r, nil
}

func (r *Registry) add(token string) bool {
	if _, ok := r.index[token]; ok {
		return false
	}
	r.index[token] = struct{}{}
	r.tokens = append(r.tokens, token)
	return true
}

// Subscribe adds token; added is false when it was already present
func (r *Registry) Subscribe(token string) (added bool, err error) {
	if token == "" {
		return false, fmt.Errorf("empty token")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[token]; ok {
		return false, nil
	}
	if r.store != nil {
		if err := r.store.SaveSubscriber(token); err != nil {
			return false, fmt.Errorf("save subscriber: %w", err)
		}
	}
	r.add(token)
	log.Info().Str("token", Mask(token)).Msg("➕ Subscribed")
	return true, nil
}

// Unsubscribe removes token; removed is false when it was absent
func (r *Registry) Unsubscribe(token string) (removed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[token]; !ok {
		return false, nil
	}
	if r.store != nil {
		if err := r.store.DeleteSubscriber(token); err != nil {
			return false, fmt.Errorf("delete subscriber: %w", err)
		}
	}
	delete(r.index, token)
	for i, t := range r.tokens {
		if t == token {
			r.tokens = append(r.tokens[:i], r.tokens[i+1:]...)
			break
		}
	}
	log.Info().Str("token", Mask(token)).Msg("➖ Unsubscribed")
	return true, nil
}

// Contains reports whether token is subscribed
func (r *Registry) Contains(token string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[token]
	return ok
}

// List returns the tokens in subscription order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.tokens...)
}

// Len returns the number of subscribed tokens
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
