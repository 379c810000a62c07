package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Checksum 计算明文的 SHA-256, 返回 64 位十六进制字符串
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum 比较明文与已存储的摘要
func VerifyChecksum(data []byte, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(Checksum(data)), []byte(expected)) == 1
}
