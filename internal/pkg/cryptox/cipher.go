package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
)

const (
	// KeySize AES-256
	KeySize = 32
	// NonceSize GCM 标准 nonce 长度
	NonceSize = 12
	// Overhead 每次加密额外增加的字节数: nonce + tag
	Overhead = NonceSize + 16
)

// Encrypt 使用 AES-256-GCM 加密, 输出格式为 nonce || ciphertext || tag
// 每次调用都生成新的随机 nonce
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("生成 nonce 失败: %w", err)
	}
	return aead.Seal(out, out[:NonceSize], plaintext, nil), nil
}

// Decrypt 校验并解密 Encrypt 的输出
// 任何格式错误或 tag 不匹配都返回 xerr.ErrIntegrity, 不返回部分明文
func Decrypt(sealed, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+aead.Overhead() {
		return nil, xerr.ErrIntegrity
	}

	plaintext, err := aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], nil)
	if err != nil {
		return nil, xerr.ErrIntegrity
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, xerr.ErrIntegrity
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("创建 AES 分组失败: %w", err)
	}
	return cipher.NewGCM(block)
}
