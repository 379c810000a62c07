package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const wrapInfo = "go-securedisk/file-key-wrap/v1"

// KeyCustody 生成文件密钥并用主密钥派生的 KEK 包裹后存储
type KeyCustody struct {
	kek []byte
}

// NewKeyCustody 由主密钥通过 HKDF-SHA256 派生 KEK
func NewKeyCustody(masterKey string) (*KeyCustody, error) {
	if len(masterKey) < KeySize {
		return nil, errors.New("主密钥长度不足")
	}
	kek := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(masterKey), nil, []byte(wrapInfo))
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, fmt.Errorf("派生 KEK 失败: %w", err)
	}
	return &KeyCustody{kek: kek}, nil
}

// GenerateKey 为单个文件生成 256 位随机密钥
func (k *KeyCustody) GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("生成文件密钥失败: %w", err)
	}
	return key, nil
}

// Wrap 返回可与文件元数据一起持久化的密钥密文
func (k *KeyCustody) Wrap(key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.New("文件密钥长度错误")
	}
	return Encrypt(key, k.kek)
}

// Unwrap 还原文件密钥, 主密钥不匹配或数据损坏时返回 xerr.ErrIntegrity
func (k *KeyCustody) Unwrap(stored []byte) ([]byte, error) {
	return Decrypt(stored, k.kek)
}
