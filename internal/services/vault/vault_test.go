package vault

import (
	"context"
	"testing"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cryptox"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newVault(t *testing.T) (*Vault, *storage.LocalStorageService) {
	t.Helper()
	logger.SetLogger(zap.NewNop())
	custody, err := cryptox.NewKeyCustody("vault-test-master-key-0123456789abcdef")
	require.NoError(t, err)
	store, err := storage.NewLocalStorageService(t.TempDir())
	require.NoError(t, err)
	return New(custody, store), store
}

func TestSealStoreOpen(t *testing.T) {
	ctx := context.Background()
	v, _ := newVault(t)
	plaintext := []byte("quarterly report")

	sealed, err := v.Seal(plaintext)
	require.NoError(t, err)
	assert.Equal(t, cryptox.Checksum(plaintext), sealed.Checksum)
	assert.NotContains(t, string(sealed.Ciphertext), "quarterly")
	require.NoError(t, v.Store(ctx, "files/u/f", sealed))

	file := &models.File{ID: "f", OssKey: "files/u/f", EncryptedKey: sealed.EncryptedKey, Checksum: sealed.Checksum}
	got, key, err := v.Open(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
	assert.Len(t, key, cryptox.KeySize)

	exported, err := v.ExportKey(file)
	require.NoError(t, err)
	assert.Equal(t, key, exported)
}

func TestOpenDetectsTampering(t *testing.T) {
	ctx := context.Background()
	v, store := newVault(t)

	sealed, err := v.Seal([]byte("payload"))
	require.NoError(t, err)
	sealed.Ciphertext[len(sealed.Ciphertext)-1] ^= 0xFF
	require.NoError(t, v.Store(ctx, "k", sealed))

	file := &models.File{ID: "f", OssKey: "k", EncryptedKey: sealed.EncryptedKey, Checksum: sealed.Checksum}
	_, _, err = v.Open(ctx, file)
	assert.ErrorIs(t, err, xerr.ErrIntegrity)

	v.Discard(ctx, "k")
	_, err = store.GetObject(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestOpenRejectsWrongChecksum(t *testing.T) {
	ctx := context.Background()
	v, _ := newVault(t)
	sealed, err := v.Seal([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, v.Store(ctx, "k", sealed))

	file := &models.File{ID: "f", OssKey: "k", EncryptedKey: sealed.EncryptedKey, Checksum: cryptox.Checksum([]byte("other"))}
	_, _, err = v.Open(ctx, file)
	assert.ErrorIs(t, err, xerr.ErrIntegrity)
}
