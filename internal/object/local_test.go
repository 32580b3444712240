package object

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/semcache/internal/config"
)

func TestLocalPutGetRoundTrip(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	handle, err := l.Put(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(handle, "local://"))

	data, err := l.Get(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestLocalPutIsContentAddressed(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	a, err := l.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	b, err := l.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := l.Put(ctx, []byte("other bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestLocalDelete(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	handle, err := l.Put(ctx, []byte("to delete"))
	require.NoError(t, err)

	require.NoError(t, l.Delete(ctx, handle))

	_, err = l.Get(ctx, handle)
	assert.Error(t, err)

	// Deleting an already-deleted handle is not an error.
	assert.NoError(t, l.Delete(ctx, handle))
}

func TestLocalRejectsMalformedHandles(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	_, err = l.Get(context.Background(), "s3://not-ours")
	assert.Error(t, err)
}

func TestOpenRegistry(t *testing.T) {
	s, err := Open(config.ObjectConfig{Backend: "local", Dir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(config.ObjectConfig{Backend: "s3"})
	assert.Error(t, err)
}
