package explorer

import (
	"context"
	"encoding/base64"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
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
	directs  repositories.DirectShareRepository
	users    repositories.UserRepository
	svc      FileService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
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
	recorder := ledger.NewRecorder(events, nil, 64)
	t.Cleanup(recorder.Close)

	f := &fixture{db: db, cfg: cfg, clock: clock, cache: c, recorder: recorder, links: links, directs: directs, users: users}
	f.svc = NewFileService(Deps{
		Files:    files,
		Links:    links,
		Directs:  directs,
		Events:   events,
		Domain:   NewFileDomainService(files, directs),
		TM:       tm,
		Quota:    quota.NewService(users, files, links, tm, &cfg.Quota),
		Vault:    vault.New(custody, store),
		Recorder: recorder,
		Cache:    c,
		Remover:  worker.NewInlineRemover(store),
		Cfg:      &cfg.Quota,
		Now:      clock.Now,
	})
	return f
}

func user(id string) *identity.Identity {
	return &identity.Identity{ID: id, Username: id, Email: id + "@example.com", Roles: []string{identity.RoleUser}}
}

// blobCount 统计本地存储中的对象数
func (f *fixture) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(f.cfg.Storage.LocalBasePath, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func (f *fixture) eventCount(t *testing.T, fileID string, typ models.AccessType) int64 {
	t.Helper()
	f.recorder.Flush()
	var n int64
	require.NoError(t, f.db.Model(&models.AccessEvent{}).Where("file_id = ? AND access_type = ?", fileID, typ).Count(&n).Error)
	return n
}

func TestUploadAndReadBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	alice := user("alice")

	file, err := f.svc.Upload(ctx, alice, UploadInput{FileName: "../notes/report.txt", Content: []byte("hello secure world")})
	require.NoError(t, err)
	assert.Equal(t, "report.txt", file.FileName)
	assert.Equal(t, uint64(18), file.Size)
	assert.Equal(t, "text/plain", file.MimeType)
	assert.Equal(t, cryptox.Checksum([]byte("hello secure world")), file.Checksum)
	assert.Equal(t, 1, f.blobCount(t))

	u, err := f.users.FindByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(18), u.UsedSpace)

	content, err := f.svc.GetFileContent(ctx, alice, file.ID, true, ledger.Client{IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello secure world"), content.Data)
	assert.Equal(t, int64(1), f.eventCount(t, file.ID, models.AccessDownload))

	listed, err := f.svc.ListFiles(ctx, alice, ListFilesQuery{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, file.ID, listed[0].ID)
}

func TestUploadQuotaBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 2*testutil.GiB-10*testutil.MiB)
	alice := user("alice")

	_, err := f.svc.Upload(ctx, alice, UploadInput{FileName: "fits.bin", Content: make([]byte, 10*testutil.MiB)})
	require.NoError(t, err)

	_, err = f.svc.Upload(ctx, alice, UploadInput{FileName: "too-big.bin", Content: make([]byte, 20*testutil.MiB)})
	require.ErrorIs(t, err, xerr.ErrQuotaExceeded)

	// 失败的上传不留下记录和对象
	listed, err := f.svc.ListFiles(ctx, alice, ListFilesQuery{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	assert.Equal(t, 1, f.blobCount(t))

	u, err := f.users.FindByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2*testutil.GiB, u.UsedSpace)
}

func TestConcurrentUploadsShareQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 2*testutil.GiB-15*testutil.MiB)
	alice := user("alice")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Upload(ctx, alice, UploadInput{FileName: "part.bin", Content: make([]byte, 10*testutil.MiB)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, xerr.ErrQuotaExceeded):
				rejected++
			default:
				t.Errorf("unexpected upload error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 3, rejected)
	u, err := f.users.FindByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2*testutil.GiB-5*testutil.MiB, u.UsedSpace)
	assert.Equal(t, 1, f.blobCount(t))
}

func TestListFilesFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	alice := user("alice")

	upload := func(name string, size int) string {
		t.Helper()
		file, err := f.svc.Upload(ctx, alice, UploadInput{FileName: name, Content: make([]byte, size)})
		require.NoError(t, err)
		return file.ID
	}
	old := upload("old-notes.txt", 30)
	f.clock.Advance(40 * 24 * time.Hour)
	mid := upload("mid-report.pdf", 10)
	f.clock.Advance(10 * 24 * time.Hour)
	recent := upload("recent-photo.png", 20)
	f.clock.Advance(24 * time.Hour)

	ids := func(list []models.File, err error) []string {
		t.Helper()
		require.NoError(t, err)
		out := make([]string, 0, len(list))
		for _, file := range list {
			out = append(out, file.ID)
		}
		return out
	}
	list := func(q ListFilesQuery) []string {
		t.Helper()
		return ids(f.svc.ListFiles(ctx, alice, q))
	}

	assert.Equal(t, []string{recent, mid, old}, list(ListFilesQuery{}))
	assert.Equal(t, []string{recent}, list(ListFilesQuery{DateRange: "7days"}))
	assert.Equal(t, []string{recent, mid}, list(ListFilesQuery{DateRange: "30days"}))
	assert.Equal(t, []string{recent, mid, old}, list(ListFilesQuery{DateRange: "90days"}))
	assert.Equal(t, []string{recent, mid, old}, list(ListFilesQuery{DateRange: "yesterday"}))

	assert.Equal(t, []string{mid, old}, list(ListFilesQuery{FileType: "document"}))
	assert.Equal(t, []string{recent}, list(ListFilesQuery{FileType: "image"}))
	assert.Empty(t, list(ListFilesQuery{FileType: "other"}))

	assert.Equal(t, []string{mid}, list(ListFilesQuery{Search: "REPORT"}))
	assert.Equal(t, []string{recent}, list(ListFilesQuery{Search: "image/png"}))

	assert.Equal(t, []string{mid, recent, old}, list(ListFilesQuery{SortBy: "size", Order: "asc"}))
	assert.Equal(t, []string{old, mid, recent}, list(ListFilesQuery{SortBy: "uploaded_at", Order: "asc"}))

	recentOnly := ids(f.svc.RecentFiles(ctx, alice, ListFilesQuery{FileType: "document", SortBy: "name", Order: "asc"}))
	assert.Equal(t, []string{recent}, recentOnly)

	// 其他用户看不到
	other := ids(f.svc.ListFiles(ctx, user("bob"), ListFilesQuery{}))
	assert.Empty(t, other)
}

func TestUploadRejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)

	guest := &identity.Identity{ID: "alice", Roles: []string{identity.RoleGuest}}
	_, err := f.svc.Upload(ctx, guest, UploadInput{FileName: "a.txt", Content: []byte("x")})
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	_, err = f.svc.Upload(ctx, user("alice"), UploadInput{FileName: "  ", Content: []byte("x")})
	assert.ErrorIs(t, err, xerr.ErrInvalidParams)

	_, err = f.svc.Upload(ctx, user("alice"), UploadInput{FileName: "big.bin", Content: make([]byte, f.cfg.Quota.MaxUploadBytes+1)})
	assert.ErrorIs(t, err, xerr.ErrFileTooLarge)
	assert.Zero(t, f.blobCount(t))
}

func TestTamperedBlobFailsIntegrity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	alice := user("alice")

	file, err := f.svc.Upload(ctx, alice, UploadInput{FileName: "a.txt", Content: []byte("integrity matters")})
	require.NoError(t, err)

	p := filepath.Join(f.cfg.Storage.LocalBasePath, filepath.FromSlash(file.OssKey))
	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0x01
	require.NoError(t, os.WriteFile(p, raw, 0o600))

	_, err = f.svc.GetFileContent(ctx, alice, file.ID, false, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrIntegrity)
	assert.Zero(t, f.eventCount(t, file.ID, models.AccessView))
}

func TestDirectSharePermissions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	testutil.SeedUser(t, f.db, "bob", 0)
	alice, bob := user("alice"), user("bob")

	file, err := f.svc.Upload(ctx, alice, UploadInput{FileName: "a.txt", Content: []byte("shared")})
	require.NoError(t, err)

	_, err = f.svc.GetFileContent(ctx, bob, file.ID, false, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	require.NoError(t, f.directs.Upsert(ctx, &models.DirectShare{FileID: file.ID, RecipientID: "bob", Permission: models.PermissionView}))
	got, err := f.svc.GetFileContent(ctx, bob, file.ID, false, ledger.Client{})
	require.NoError(t, err)
	assert.Equal(t, []byte("shared"), got.Data)
	_, err = f.svc.GetFileContent(ctx, bob, file.ID, true, ledger.Client{})
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	require.NoError(t, f.directs.Upsert(ctx, &models.DirectShare{FileID: file.ID, RecipientID: "bob", Permission: models.PermissionDownload}))
	_, err = f.svc.GetFileContent(ctx, bob, file.ID, true, ledger.Client{})
	require.NoError(t, err)

	grant, err := f.directs.Find(ctx, file.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), grant.AccessCount)

	_, err = f.svc.ExportKey(ctx, bob, file.ID)
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)
	key, err := f.svc.ExportKey(ctx, alice, file.ID)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, cryptox.KeySize)
}

func TestDeleteFileCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	testutil.SeedUser(t, f.db, "alice", 0)
	testutil.SeedUser(t, f.db, "bob", 0)
	alice := user("alice")

	file, err := f.svc.Upload(ctx, alice, UploadInput{FileName: "a.txt", Content: []byte("to be deleted")})
	require.NoError(t, err)
	require.NoError(t, f.links.Create(ctx, &models.ShareLink{FileID: file.ID, UserID: "alice", Token: "tok-1", ExpiresAt: f.clock.Now().Add(time.Hour)}))
	require.NoError(t, f.directs.Upsert(ctx, &models.DirectShare{FileID: file.ID, RecipientID: "bob", Permission: models.PermissionView}))
	require.NoError(t, f.cache.Set(ctx, cache.GenerateShareAccessKey("tok-1"), "jwt", time.Hour))
	_, err = f.svc.GetFileContent(ctx, alice, file.ID, false, ledger.Client{})
	require.NoError(t, err)
	f.recorder.Flush()

	assert.ErrorIs(t, f.svc.DeleteFile(ctx, user("bob"), file.ID), xerr.ErrPermissionDenied)
	require.NoError(t, f.svc.DeleteFile(ctx, alice, file.ID))

	_, err = f.svc.GetFile(ctx, alice, file.ID)
	assert.ErrorIs(t, err, xerr.ErrFileNotFound)
	link, err := f.links.FindByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, link)
	grant, err := f.directs.Find(ctx, file.ID, "bob")
	require.NoError(t, err)
	assert.Nil(t, grant)

	var tombstoned int64
	require.NoError(t, f.db.Model(&models.AccessEvent{}).Where("file_id = ? AND file_deleted = ?", file.ID, true).Count(&tombstoned).Error)
	assert.Equal(t, int64(1), tombstoned)

	exists, err := f.cache.Exists(ctx, cache.GenerateShareAccessKey("tok-1"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Zero(t, f.blobCount(t))

	u, err := f.users.FindByID(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, u.UsedSpace)
}

func TestDetectMimeType(t *testing.T) {
	assert.Equal(t, "image/png", detectMimeType("image/png; charset=binary", "x", nil))
	assert.Equal(t, "application/pdf", detectMimeType("", "doc.PDF", nil))
	assert.Equal(t, "text/plain", detectMimeType("application/octet-stream", "noext", []byte("plain text")))
	assert.Equal(t, "application/octet-stream", detectMimeType("", "noext", []byte{0x00, 0x01}))
}
