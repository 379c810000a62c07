// Package testutil 提供跨包测试共用的数据库和配置夹具
package testutil

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const (
	GiB = uint64(1 << 30)
	MiB = uint64(1 << 20)
)

// NewDB 打开一个临时 sqlite 文件库并完成迁移
// 只保留一个连接, 事务因此互斥, 效果等同于行锁串行化
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.SetLogger(zap.NewNop())

	dsn := filepath.Join(t.TempDir(), "securedisk.db") + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(0)"
	db, err := gorm.Open(gormsqlite.New(gormsqlite.Config{
		DriverName: "sqlite",
		DSN:        dsn,
	}), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return db
}

// Config 测试用配置, 默认值与线上一致
func Config(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Mode: "test"},
		Database: config.DatabaseConfig{Driver: "sqlite"},
		Cache:    config.CacheConfig{Type: "memory", Size: 1024},
		Storage:  config.StorageConfig{Type: "local", LocalBasePath: t.TempDir()},
		Identity: config.IdentityConfig{HMACSecret: "identity-test-secret", Issuer: "https://idp.test/realms/securedisk"},
		Security: config.SecurityConfig{
			MasterKey:         "test-master-key-0123456789abcdef0123",
			AccessTokenSecret: "share-access-test-secret",
			AccessTokenTTL:    time.Hour,
		},
		Quota: config.QuotaConfig{
			StorageLimitBytes: 2 * GiB,
			MaxShareLinks:     100,
			MaxUploadBytes:    64 * MiB,
		},
		Share: config.ShareConfig{DefaultExpiryHours: 24},
	}
}

// SeedUser 创建用户, used 为已占用字节数
func SeedUser(t *testing.T, db *gorm.DB, id string, used uint64) *models.User {
	t.Helper()
	u := &models.User{
		ID:          id,
		Username:    id,
		Email:       fmt.Sprintf("%s@example.com", id),
		DisplayName: "User " + id,
		UsedSpace:   used,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Clock 可控时钟, 所有时间均为 UTC
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock() *Clock {
	return &Clock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
