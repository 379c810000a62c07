package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// 缓存的身份最多保留这么久, 避免角色变更长时间不生效
const maxIdentityCacheTTL = 5 * time.Minute

type realmAccess struct {
	Roles []string `json:"roles"`
}

// providerClaims Keycloak 风格的访问令牌
type providerClaims struct {
	PreferredUsername string      `json:"preferred_username"`
	Email             string      `json:"email"`
	Name              string      `json:"name"`
	GivenName         string      `json:"given_name"`
	FamilyName        string      `json:"family_name"`
	RealmAccess       realmAccess `json:"realm_access"`
	jwt.RegisteredClaims
}

// JWTOracle 使用 RS256 公钥或 HS256 密钥本地校验访问令牌
type JWTOracle struct {
	key      any
	methods  []string
	issuer   string
	audience string
	cache    cache.Cache
	now      func() time.Time
}

// NewJWTOracle 优先使用公钥, 未配置时退回 HMAC 密钥
func NewJWTOracle(cfg *config.IdentityConfig, c cache.Cache) (*JWTOracle, error) {
	o := &JWTOracle{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		cache:    c,
		now:      time.Now,
	}
	switch {
	case cfg.PublicKeyPEM != "":
		key, err := parsePublicKey(cfg.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		o.key = key
		o.methods = []string{jwt.SigningMethodRS256.Alg()}
	case cfg.HMACSecret != "":
		o.key = []byte(cfg.HMACSecret)
		o.methods = []string{jwt.SigningMethodHS256.Alg()}
	default:
		return nil, errors.New("未配置身份令牌校验密钥")
	}
	return o, nil
}

// parsePublicKey 兼容完整 PEM 和 Keycloak 控制台给出的裸 base64 公钥
func parsePublicKey(raw string) (*rsa.PublicKey, error) {
	pemText := strings.TrimSpace(raw)
	if !strings.HasPrefix(pemText, "-----BEGIN") {
		pemText = "-----BEGIN PUBLIC KEY-----\n" + pemText + "\n-----END PUBLIC KEY-----"
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
	if err != nil {
		return nil, fmt.Errorf("解析身份提供方公钥失败: %w", err)
	}
	return key, nil
}

func (o *JWTOracle) Authenticate(ctx context.Context, bearer string) (*Identity, error) {
	if bearer == "" {
		return nil, xerr.ErrTokenInvalid
	}

	cacheKey := cache.GenerateIdentityKey(bearer)
	if o.cache != nil {
		var cached Identity
		if err := o.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	claims := &providerClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(o.methods),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(o.now),
	}
	if o.issuer != "" {
		opts = append(opts, jwt.WithIssuer(o.issuer))
	}
	if o.audience != "" {
		opts = append(opts, jwt.WithAudience(o.audience))
	}
	if _, err := jwt.ParseWithClaims(bearer, claims, func(*jwt.Token) (any, error) { return o.key, nil }, opts...); err != nil {
		logger.Debug("identity token rejected", zap.Error(err))
		return nil, xerr.ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, xerr.ErrTokenInvalid
	}

	id := &Identity{
		ID:          claims.Subject,
		Username:    claims.PreferredUsername,
		DisplayName: displayName(claims),
		Email:       claims.Email,
		Roles:       claims.RealmAccess.Roles,
	}

	if o.cache != nil {
		ttl := claims.ExpiresAt.Sub(o.now())
		if ttl > maxIdentityCacheTTL {
			ttl = maxIdentityCacheTTL
		}
		if ttl > 0 {
			if err := o.cache.Set(ctx, cacheKey, id, ttl); err != nil {
				logger.Warn("failed to cache identity", zap.String("user_id", id.ID), zap.Error(err))
			}
		}
	}
	return id, nil
}

func displayName(c *providerClaims) string {
	if c.Name != "" {
		return c.Name
	}
	full := strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	if full != "" {
		return full
	}
	return c.PreferredUsername
}
