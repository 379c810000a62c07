package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
	"github.com/3Eeeecho/go-securedisk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	clock := testutil.NewClock()
	now := clock.Now()

	testutil.SeedUser(t, db, "alice", 300)
	testutil.SeedUser(t, db, "bob", 0)
	file := &models.File{ID: "f-1", UserID: "alice", FileName: "a.txt", Size: 300, Checksum: "x", OssKey: "files/alice/f-1"}
	require.NoError(t, db.Create(file).Error)

	limit := int64(1)
	require.NoError(t, db.Create(&[]models.ShareLink{
		{FileID: "f-1", UserID: "alice", Token: "live", ExpiresAt: now.Add(time.Hour)},
		{FileID: "f-1", UserID: "alice", Token: "used", ExpiresAt: now.Add(time.Hour), AccessCount: 1, MaxAccessCount: &limit},
		{FileID: "f-1", UserID: "alice", Token: "old", ExpiresAt: now.Add(-time.Hour)},
	}).Error)
	require.NoError(t, db.Create(&models.DirectShare{FileID: "f-1", RecipientID: "bob", RecipientEmail: "bob@example.com", Permission: models.PermissionView}).Error)

	bob := "bob"
	events := []models.AccessEvent{
		{FileID: "f-1", ActorID: &bob, AccessedAt: now.Add(-time.Hour), AccessType: models.AccessView},
		{FileID: "f-1", ActorID: &bob, AccessedAt: now.Add(-2 * time.Hour), AccessType: models.AccessDownload},
		{FileID: "f-1", IPAddress: "192.0.2.1", AccessedAt: now.AddDate(0, 0, -2), AccessType: models.AccessDownload},
		{FileID: "f-1", IPAddress: "192.0.2.1", AccessedAt: now.AddDate(0, 0, -2), AccessType: models.AccessView},
		{FileID: "f-1", IPAddress: "192.0.2.2", AccessedAt: now.AddDate(0, 0, -40), AccessType: models.AccessView},
		{FileID: "gone", FileDeleted: true, AccessedAt: now, AccessType: models.AccessView},
	}
	require.NoError(t, db.Create(&events).Error)

	files := repositories.NewFileRepository(db)
	users := repositories.NewUserRepository(db)
	links := repositories.NewShareLinkRepository(db)
	tm := repositories.NewTransactionManager(db)
	svc := NewStatsService(files, links, repositories.NewDirectShareRepository(db), repositories.NewAccessEventRepository(db),
		quota.NewService(users, files, links, tm, &cfg.Quota), clock.Now)

	alice := &identity.Identity{ID: "alice", Roles: []string{identity.RoleUser}}
	stats, err := svc.FileStats(ctx, alice, "f-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalViews)
	assert.Equal(t, int64(2), stats.TotalDownloads)
	// bob 一个, 匿名按 IP 两个
	assert.Equal(t, int64(3), stats.UniqueVisitors)
	require.NotNil(t, stats.LastAccessed)
	assert.True(t, now.Add(-time.Hour).Equal(*stats.LastAccessed))
	assert.Equal(t, int64(1), stats.DirectShares)
	assert.Equal(t, int64(3), stats.ShareLinks)
	assert.Equal(t, int64(1), stats.ActiveLinks)

	_, err = svc.FileStats(ctx, &identity.Identity{ID: "bob", Roles: []string{identity.RoleUser}}, "f-1")
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
	_, err = svc.FileStats(ctx, &identity.Identity{ID: "root", Roles: []string{identity.RoleAdmin}}, "f-1")
	assert.NoError(t, err)
	_, err = svc.FileStats(ctx, alice, "missing")
	assert.ErrorIs(t, err, xerr.ErrFileNotFound)

	history, err := svc.AccessHistory(ctx, alice, "f-1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 4)
	history, err = svc.AccessHistory(ctx, alice, "f-1", 1)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	daily, err := svc.DailyBreakdown(ctx, alice, "f-1", 7)
	require.NoError(t, err)
	assert.Equal(t, []DailyAccess{
		{Date: "2025-06-01", Views: 1, Downloads: 1},
		{Date: "2025-05-30", Views: 1, Downloads: 1},
	}, daily)

	owner, err := svc.OwnerStats(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), owner.UsedBytes)
	assert.Equal(t, int64(1), owner.FileCount)
	// 链接配额只看是否过期, 次数用完的链接仍然占用名额
	assert.Equal(t, int64(2), owner.ActiveLinks)
	assert.Equal(t, int64(3), owner.TotalViews)
	assert.Equal(t, int64(2), owner.TotalDownloads)
}
