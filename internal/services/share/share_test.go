package share

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cryptox"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/mq/worker"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/services/explorer"
	"github.com/3Eeeecho/go-securedisk/internal/services/ledger"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
	"github.com/3Eeeecho/go-securedisk/internal/services/vault"
	"github.com/3Eeeecho/go-securedisk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	cfg      *config.Config
	clock    *testutil.Clock
	cache    cache.Cache
	recorder ledger.Recorder
	links    repositories.ShareLinkRepository
	files    explorer.FileService
	shares   ShareService
	grants   DirectShareService
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	for _, m := range mutate {
		m(cfg)
	}
	clock := testutil.NewClock()

	users := repositories.NewUserRepository(db)
	files := repositories.NewFileRepository(db)
	links := repositories.NewShareLinkRepository(db)
	directs := repositories.NewDirectShareRepository(db)
	events := repositories.NewAccessEventRepository(db)
	tm := repositories.NewTransactionManager(db)

	store, err := storage.NewLocalStorageService(cfg.Storage.LocalBasePath)
	require.NoError(t, err)
	custody, err := cryptox.NewKeyCustody(cfg.Security.MasterKey)
	require.NoError(t, err)
	c, err := cache.New(&cfg.Cache, nil)
	require.NoError(t, err)
	recorder := ledger.NewRecorder(events, nil, 256)
	t.Cleanup(recorder.Close)

	q := quota.NewService(users, files, links, tm, &cfg.Quota)
	v := vault.New(custody, store)
	domain := explorer.NewFileDomainService(files, directs)

	return &fixture{
		db:       db,
		cfg:      cfg,
		clock:    clock,
		cache:    c,
		recorder: recorder,
		links:    links,
		files: explorer.NewFileService(explorer.Deps{
			Files: files, Links: links, Directs: directs, Events: events, Domain: domain, TM: tm,
			Quota: q, Vault: v, Recorder: recorder, Cache: c, Remover: worker.NewInlineRemover(store),
			Cfg: &cfg.Quota, Now: clock.Now,
		}),
		shares: NewShareService(Deps{
			Links: links, Domain: domain, TM: tm, Quota: q, Vault: v, Recorder: recorder, Cache: c,
			Security: &cfg.Security, Share: &cfg.Share, Now: clock.Now,
		}),
		grants: NewDirectShareService(directs, domain, identity.NewRegistry(users)),
	}
}

func user(id string) *identity.Identity {
	return &identity.Identity{ID: id, Username: id, Email: id + "@example.com", Roles: []string{identity.RoleUser}}
}

func (f *fixture) upload(t *testing.T, owner, content string) *models.File {
	t.Helper()
	file, err := f.files.Upload(context.Background(), user(owner), explorer.UploadInput{FileName: "doc.txt", Content: []byte(content)})
	require.NoError(t, err)
	return file
}

func (f *fixture) linkEvents(t *testing.T, linkID uint64, typ models.AccessType) int64 {
	t.Helper()
	f.recorder.Flush()
	var n int64
	require.NoError(t, f.db.Model(&models.AccessEvent{}).Where("share_link_id = ? AND access_type = ?", linkID, typ).Count(&n).Error)
	return n
}

func ptr(n int64) *int64 { return &n }

func TestLinkMaxAccessCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "limited")

	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, MaxAccessCount: ptr(2)})
	require.NoError(t, err)
	assert.Len(t, link.Token, 43)
	assert.Equal(t, f.clock.Now().Add(24*time.Hour), link.ExpiresAt)

	for range 2 {
		dl, err := f.shares.DownloadSharedFile(ctx, link.Token, "", nil, ledger.Client{IP: "203.0.113.7"})
		require.NoError(t, err)
		assert.Equal(t, []byte("limited"), dl.Data)
		assert.NotEmpty(t, dl.Key)
	}
	_, err = f.shares.DownloadSharedFile(ctx, link.Token, "", nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrShareExhausted)

	stored, err := f.links.FindByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.AccessCount)
	assert.Equal(t, int64(2), f.linkEvents(t, link.ID, models.AccessDownload))
}

func TestConcurrentDownloadsConsumeOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "race")
	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, MaxAccessCount: ptr(1)})
	require.NoError(t, err)

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		exhausted int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.shares.DownloadSharedFile(ctx, link.Token, "", nil, ledger.Client{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, xerr.ErrShareExhausted):
				exhausted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, exhausted)
	assert.Equal(t, int64(1), f.linkEvents(t, link.ID, models.AccessDownload))
}

func TestExpiredLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "short lived")
	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, ExpiryHours: 1, MaxAccessCount: ptr(1)})
	require.NoError(t, err)
	_, err = f.shares.DownloadSharedFile(ctx, link.Token, "", nil, ledger.Client{})
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	// 过期和次数耗尽同时成立时报告过期
	_, err = f.shares.GetSharedFile(ctx, link.Token, nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrShareExpired)
	_, err = f.shares.DownloadSharedFile(ctx, link.Token, "", nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrShareExpired)

	_, err = f.shares.GetSharedFile(ctx, "does-not-exist", nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrShareNotFound)
}

func TestGetSharedFileDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "peek")
	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, MaxAccessCount: ptr(3)})
	require.NoError(t, err)

	view, err := f.shares.GetSharedFile(ctx, link.Token, user("bob"), ledger.Client{IP: "198.51.100.1"})
	require.NoError(t, err)
	assert.Equal(t, "doc.txt", view.FileName)
	assert.Equal(t, int64(3), *view.RemainingAccesses)
	assert.Equal(t, models.LinkActive, view.State)

	stored, err := f.links.FindByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.AccessCount)
	require.NotNil(t, stored.LastAccessed)
	assert.Equal(t, int64(1), f.linkEvents(t, link.ID, models.AccessView))
}

func TestPasswordProtectedLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "secret payload")
	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, Password: "open sesame"})
	require.NoError(t, err)
	assert.True(t, link.IsPasswordProtected)
	assert.NotEqual(t, "open sesame", link.PasswordHash)

	for range 3 {
		_, err := f.shares.VerifyPassword(ctx, link.Token, "wrong")
		assert.ErrorIs(t, err, xerr.ErrUnauthorized)
	}
	_, err = f.shares.DownloadSharedFile(ctx, link.Token, "", nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrUnauthorized)
	_, err = f.shares.DownloadSharedFile(ctx, link.Token, "forged", nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrUnauthorized)
	assert.Zero(t, f.linkEvents(t, link.ID, models.AccessDownload))

	grant, err := f.shares.VerifyPassword(ctx, link.Token, "open sesame")
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(time.Hour), grant.ExpiresAt)

	dl, err := f.shares.DownloadSharedFile(ctx, link.Token, grant.AccessToken, nil, ledger.Client{})
	require.NoError(t, err)
	assert.Equal(t, []byte("secret payload"), dl.Data)
	assert.Equal(t, int64(1), f.linkEvents(t, link.ID, models.AccessDownload))

	// 修改密码后旧令牌失效
	require.NoError(t, f.shares.SetLinkPassword(ctx, user("alice"), link.ID, "new password"))
	_, err = f.shares.DownloadSharedFile(ctx, link.Token, grant.AccessToken, nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrUnauthorized)
}

func TestReverifyReplacesAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "twice")
	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, Password: "pw"})
	require.NoError(t, err)

	first, err := f.shares.VerifyPassword(ctx, link.Token, "pw")
	require.NoError(t, err)
	second, err := f.shares.VerifyPassword(ctx, link.Token, "pw")
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, second.AccessToken)

	_, err = f.shares.DownloadSharedFile(ctx, link.Token, first.AccessToken, nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrUnauthorized)
	_, err = f.shares.DownloadSharedFile(ctx, link.Token, second.AccessToken, nil, ledger.Client{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.linkEvents(t, link.ID, models.AccessDownload))
}

func TestProtectedLinkViewHidesDigest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "1234")
	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, Password: "pw"})
	require.NoError(t, err)

	view, err := f.shares.GetSharedFile(ctx, link.Token, nil, ledger.Client{IP: "198.51.100.9"})
	require.NoError(t, err)
	assert.Equal(t, models.LinkPasswordPending, view.State)
	assert.True(t, view.IsPasswordProtected)

	body, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "checksum")
	assert.NotContains(t, string(body), cryptox.Checksum([]byte("1234")))
}

func TestLinkPasswordLength(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "long")

	_, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, Password: strings.Repeat("p", 80)})
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)
	assert.NotErrorIs(t, err, xerr.ErrInternalServer)

	longest := strings.Repeat("p", 72)
	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, Password: longest})
	require.NoError(t, err)
	_, err = f.shares.VerifyPassword(ctx, link.Token, longest)
	require.NoError(t, err)

	err = f.shares.SetLinkPassword(ctx, user("alice"), link.ID, strings.Repeat("p", 73))
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)
}

func TestAccessTokenExpiresWithTTL(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "ttl")
	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, Password: "pw"})
	require.NoError(t, err)
	grant, err := f.shares.VerifyPassword(ctx, link.Token, "pw")
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.shares.DownloadSharedFile(ctx, link.Token, grant.AccessToken, nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrUnauthorized)
}

func TestRevokeLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "revocable")
	link, err := f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID})
	require.NoError(t, err)
	_, err = f.shares.DownloadSharedFile(ctx, link.Token, "", nil, ledger.Client{})
	require.NoError(t, err)

	assert.ErrorIs(t, f.shares.RevokeLink(ctx, user("mallory"), link.ID), xerr.ErrPermissionDenied)
	assert.ErrorIs(t, f.shares.RevokeLink(ctx, user("alice"), 9999), xerr.ErrShareNotFound)
	require.NoError(t, f.shares.RevokeLink(ctx, user("alice"), link.ID))

	_, err = f.shares.DownloadSharedFile(ctx, link.Token, "", nil, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrShareExpired)

	links, err := f.shares.ListLinks(ctx, user("alice"))
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, int64(1), links[0].AccessCount)
	assert.Equal(t, models.LinkExpired, links[0].State(f.clock.Now()))
}

func TestCreateLinkValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(c *config.Config) { c.Quota.MaxShareLinks = 1 })
	testutil.SeedUser(t, f.db, "alice", 0)
	file := f.upload(t, "alice", "x")

	_, err := f.shares.CreateLink(ctx, &identity.Identity{ID: "alice", Roles: []string{identity.RoleGuest}}, CreateLinkInput{FileID: file.ID})
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
	_, err = f.shares.CreateLink(ctx, user("bob"), CreateLinkInput{FileID: file.ID})
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
	_, err = f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: "missing"})
	assert.ErrorIs(t, err, xerr.ErrFileNotFound)
	_, err = f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, ExpiryHours: -1})
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)
	_, err = f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID, MaxAccessCount: ptr(0)})
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)

	_, err = f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID})
	require.NoError(t, err)
	_, err = f.shares.CreateLink(ctx, user("alice"), CreateLinkInput{FileID: file.ID})
	qe, ok := xerr.AsQuota(err)
	require.True(t, ok, "expected quota error, got %v", err)
	assert.Equal(t, xerr.QuotaLinks, qe.Kind)
}
