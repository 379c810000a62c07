package models

import (
	"time"
)

// File 对应 files 表
// Size 与 Checksum 均基于明文, 存储中的是 nonce+密文+tag
type File struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	UserID       string    `gorm:"size:64;not null;index" json:"owner_id"`
	FileName     string    `gorm:"size:255;not null" json:"name"`
	Size         uint64    `gorm:"not null;default:0" json:"size"`
	MimeType     string    `gorm:"size:128" json:"mime_type"`
	Checksum     string    `gorm:"size:64;not null" json:"checksum"`
	EncryptedKey []byte    `json:"-"` // 主密钥包裹后的文件密钥
	OssKey       string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName 指定 GORM 使用的表名
func (File) TableName() string {
	return "files"
}

// IsEncrypted 文件是否带有密钥
func (f *File) IsEncrypted() bool {
	return len(f.EncryptedKey) > 0
}
