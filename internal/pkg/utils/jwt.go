package utils

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const shareAccessAudience = "share-access"

// ShareAccessClaims 分享链接密码校验通过后签发的短期令牌
type ShareAccessClaims struct {
	LinkToken string `json:"lnk"`
	jwt.RegisteredClaims
}

// GenerateShareAccessToken 生成与分享链接绑定的访问令牌
func GenerateShareAccessToken(secretKey, linkToken string, now time.Time, expiresIn time.Duration) (string, error) {
	claims := &ShareAccessClaims{
		LinkToken: linkToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Audience:  []string{shareAccessAudience},
			ID:        uuid.NewString(), // 每次签发都不同, 重新校验会替换旧令牌
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ParseShareAccessToken 校验签名, 过期时间和绑定的链接
func ParseShareAccessToken(secretKey, tokenString, linkToken string, now time.Time) (*ShareAccessClaims, error) {
	claims := &ShareAccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(shareAccessAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(claims.LinkToken), []byte(linkToken)) != 1 {
		return nil, errors.New("token is bound to another link")
	}
	return claims, nil
}
