package voicelive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T, f *fakeUpstream) *Registry {
	t.Helper()
	cfg := SessionConfig{Modalities: []string{"text", "audio"}}
	r := NewRegistry(f.url(), "test-key", cfg, nil, zap.NewNop())
	t.Cleanup(r.CloseAll)
	return r
}

func TestRegistry_CreateGetRemove(t *testing.T) {
	f := newFakeUpstream(t)
	r := newTestRegistry(t, f)

	session, err := r.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, StateConnected, session.State())
	f.waitFor("session.update")

	got, err := r.Get(session.ID)
	require.NoError(t, err)
	assert.Same(t, session, got)

	assert.Equal(t, []string{session.ID}, r.List())

	r.Remove(session.ID)
	_, err = r.Get(session.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, StateDisconnected, session.State())
	assert.Empty(t, r.List())

	// Removing an absent id is a no-op.
	r.Remove(session.ID)
}

func TestRegistry_GetUnknownID(t *testing.T) {
	f := newFakeUpstream(t)
	r := newTestRegistry(t, f)

	_, err := r.Get("no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_CreateFailureNotRegistered(t *testing.T) {
	r := NewRegistry("ws://127.0.0.1:1/voice-live", "test-key", SessionConfig{}, nil, zap.NewNop())

	_, err := r.Create(context.Background())
	require.Error(t, err)
	assert.Empty(t, r.List())
}

func TestRegistry_CloseAll(t *testing.T) {
	f := newFakeUpstream(t)
	r := newTestRegistry(t, f)

	first, err := r.Create(context.Background())
	require.NoError(t, err)
	second, err := r.Create(context.Background())
	require.NoError(t, err)
	assert.Len(t, r.List(), 2)

	r.CloseAll()
	assert.Empty(t, r.List())
	assert.Equal(t, StateDisconnected, first.State())
	assert.Equal(t, StateDisconnected, second.State())
}
