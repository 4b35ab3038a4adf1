package supervisor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	tokens []string
	fail   error
}

func (m *memStore) SaveSubscriber(token string) error {
	if m.fail != nil {
		return m.fail
	}
	m.tokens = append(m.tokens, token)
	return nil
}

func (m *memStore) DeleteSubscriber(token string) error {
	if m.fail != nil {
		return m.fail
	}
	for i, t := range m.tokens {
		if t == token {
			m.tokens = append(m.tokens[:i], m.tokens[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memStore) ListSubscribers() ([]string, error) {
	return append([]string(nil), m.tokens...), m.fail
}

func TestRegistryLoadsAndSeeds(t *testing.T) {
	store := &memStore{tokens: []string{"saved-1"}}

	r, err := NewRegistry(store, []string{"seed-1", "saved-1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"saved-1", "seed-1"}, r.List())
	assert.Equal(t, []string{"saved-1", "seed-1"}, store.tokens, "seeds are persisted")
}

func TestRegistrySubscribeUnsubscribe(t *testing.T) {
	store := &memStore{}
	r, err := NewRegistry(store, nil)
	require.NoError(t, err)

	added, err := r.Subscribe("tok-a")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = r.Subscribe("tok-a")
	require.NoError(t, err)
	assert.False(t, added)

	_, err = r.Subscribe("tok-b")
	require.NoError(t, err)
	assert.True(t, r.Contains("tok-b"))
	assert.Equal(t, 2, r.Len())

	removed, err := r.Unsubscribe("tok-a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = r.Unsubscribe("tok-a")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, []string{"tok-b"}, r.List())
	assert.Equal(t, []string{"tok-b"}, store.tokens)

	_, err = r.Subscribe("")
	assert.Error(t, err)
}

func TestRegistryStoreFailureKeepsMemoryConsistent(t *testing.T) {
	store := &memStore{}
	r, err := NewRegistry(store, nil)
	require.NoError(t, err)

	store.fail = errors.New("disk full")
	_, err = r.Subscribe("tok-a")
	assert.Error(t, err)
	assert.False(t, r.Contains("tok-a"))

	_, err = NewRegistry(store, nil)
	assert.Error(t, err)
}

func TestRegistryWithoutStore(t *testing.T) {
	r, err := NewRegistry(nil, []string{"x", "y", "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, r.List())
}
