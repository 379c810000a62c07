package admin

import (
	"context"
	"testing"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
	"github.com/3Eeeecho/go-securedisk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (UserService, *testutil.Clock) {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	clock := testutil.NewClock()

	testutil.SeedUser(t, db, "alice", 999)
	testutil.SeedUser(t, db, "bob", 0)
	require.NoError(t, db.Create(&[]models.File{
		{ID: "f-1", UserID: "alice", FileName: "a", Size: 100, Checksum: "x", OssKey: "files/alice/f-1"},
		{ID: "f-2", UserID: "alice", FileName: "b", Size: 50, Checksum: "y", OssKey: "files/alice/f-2"},
	}).Error)

	users := repositories.NewUserRepository(db)
	files := repositories.NewFileRepository(db)
	links := repositories.NewShareLinkRepository(db)
	q := quota.NewService(users, files, links, repositories.NewTransactionManager(db), &cfg.Quota)
	return NewUserService(users, q, clock.Now), clock
}

func TestGetUserProfile(t *testing.T) {
	svc, _ := newService(t)
	actor := &identity.Identity{ID: "alice", Username: "alice", Roles: []string{identity.RoleUser}}

	profile, err := svc.GetUserProfile(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.ID)
	assert.Equal(t, uint64(999), profile.Quota.UsedBytes)
	assert.Equal(t, int64(2), profile.Quota.FileCount)

	_, err = svc.GetUserProfile(context.Background(), &identity.Identity{ID: "ghost"})
	assert.ErrorIs(t, err, xerr.ErrUserNotFound)
}

func TestReconcileQuota(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	root := &identity.Identity{ID: "root", Roles: []string{identity.RoleAdmin}}

	_, err := svc.ReconcileQuota(ctx, &identity.Identity{ID: "alice", Roles: []string{identity.RoleUser}}, "")
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
	_, err = svc.ReconcileQuota(ctx, root, "ghost")
	assert.ErrorIs(t, err, xerr.ErrUserNotFound)

	results, err := svc.ReconcileQuota(ctx, root, "alice")
	require.NoError(t, err)
	assert.Equal(t, []ReconcileResult{{UserID: "alice", Before: 999, After: 150}}, results)

	results, err = svc.ReconcileQuota(ctx, root, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []ReconcileResult{
		{UserID: "alice", Before: 150, After: 150},
		{UserID: "bob", Before: 0, After: 0},
	}, results)
}
