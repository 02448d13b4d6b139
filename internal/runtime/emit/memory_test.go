package emit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/scriptflow/internal/runtime/errors"
)

func TestMemorySinkClaimWriteGet(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()

	ok, err := sink.Claim(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = sink.Claim(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found := sink.Get("b")
	assert.False(t, found, "claimed but unwritten ids are not visible")

	require.NoError(t, sink.Write(ctx, "b", []byte("B"), false))
	_, err = sink.Claim(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, sink.Write(ctx, "a", []byte("A"), true))

	assert.Equal(t, []string{"b", "a"}, sink.Written())
	assert.Equal(t, []string{"a", "b"}, sink.IDs())

	art, found := sink.Get("a")
	require.True(t, found)
	assert.Equal(t, "A", string(art.Body))
	assert.True(t, art.Executable)
}

func TestMemorySinkWriteRequiresClaim(t *testing.T) {
	err := NewMemorySink().Write(context.Background(), "x", nil, false)
	assert.ErrorIs(t, err, errors.ErrNotClaimed)
}

func TestMemorySinkReleaseKeepsWritten(t *testing.T) {
	ctx := context.Background()
	sink := NewMemorySink()
	_, _ = sink.Claim(ctx, "kept")
	require.NoError(t, sink.Write(ctx, "kept", []byte("x"), false))
	_, _ = sink.Claim(ctx, "dropped")

	require.NoError(t, sink.Release(ctx, "kept"))
	require.NoError(t, sink.Release(ctx, "dropped"))

	_, found := sink.Get("kept")
	assert.True(t, found)
	ok, err := sink.Claim(ctx, "dropped")
	require.NoError(t, err)
	assert.True(t, ok)
}
