package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorageService(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.EnsureBucket(ctx))

	payload := []byte("ciphertext bytes")
	res, err := s.PutObject(ctx, "files/u1/abc", bytes.NewReader(payload), int64(len(payload)), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), res.Size)

	got, err := ReadAll(ctx, s, "files/u1/abc")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, s.RemoveObject(ctx, "files/u1/abc"))
	require.NoError(t, s.RemoveObject(ctx, "files/u1/abc"))

	_, err = s.GetObject(ctx, "files/u1/abc")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s, err := NewLocalStorageService(t.TempDir())
	require.NoError(t, err)

	_, err = s.PutObject(context.Background(), "../escape", bytes.NewReader(nil), 0, "")
	assert.Error(t, err)
}
