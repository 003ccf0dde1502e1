package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolLifecycle(t *testing.T) {
	p := NewPool()
	page := &Page{}

	id := p.Put(nil, page)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, p.Len())

	got, err := p.Get(id)
	require.NoError(t, err)
	assert.Same(t, page, got.Page)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, p.Close(id))
	assert.Equal(t, 0, p.Len())

	_, err = p.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	// Already closed
	assert.NoError(t, p.Close(id))
}

func TestPoolDistinctIDs(t *testing.T) {
	p := NewPool()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := p.Put(nil, nil)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 50, p.Len())

	require.NoError(t, p.CloseAll())
	assert.Equal(t, 0, p.Len())
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.Headless)
	assert.True(t, opts.NoSandbox)
	assert.Equal(t, 1280, opts.ViewportWidth)
	assert.Equal(t, 720, opts.ViewportHeight)
}
