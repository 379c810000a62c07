package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss key 不存在或已过期
var ErrCacheMiss = xerr.ErrCacheMiss

// Redis 中所有 key 的命名空间
const keyPrefix = "securedisk:"

// 缓存通用接口, 所有实现对单个 key 的更新都是原子的
type Cache interface {
	// Set 在缓存中设置一个值，并指定过期时间。
	// value 应该是一个可以被 JSON 封送的值。
	Set(ctx context.Context, key string, value any, expiration time.Duration) error

	// Get 从缓存中检索一个值，并将其解编组到 target, 未命中返回 ErrCacheMiss
	Get(ctx context.Context, key string, target any) error

	// 删除一个或多个key
	Del(ctx context.Context, keys ...string) error

	// 检查key是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// TTL 返回剩余存活时间, key 不存在时返回负值
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// New 按配置选择缓存实现, redis 类型需要传入已连接的客户端
func New(cfg *config.CacheConfig, client *redis.Client) (Cache, error) {
	switch cfg.Type {
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis 缓存需要 redis 客户端")
		}
		return NewRedisCache(client, keyPrefix), nil
	case "memory":
		return NewMemoryCache(cfg.Size), nil
	default:
		return nil, fmt.Errorf("未知的缓存类型: %s", cfg.Type)
	}
}

// GenerateShareAccessKey 分享链接访问令牌, 每个链接只保留一个
func GenerateShareAccessKey(shareToken string) string {
	return fmt.Sprintf("share:access:%s", shareToken)
}

// GenerateIdentityKey 身份令牌校验结果, 按令牌哈希存储
func GenerateIdentityKey(bearer string) string {
	sum := sha256.Sum256([]byte(bearer))
	return fmt.Sprintf("identity:token:%s", hex.EncodeToString(sum[:]))
}
