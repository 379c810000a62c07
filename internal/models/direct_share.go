package models

import (
	"time"
)

// Permission 直接分享的权限
type Permission string

const (
	PermissionView     Permission = "view"
	PermissionDownload Permission = "download"
)

// Valid 只允许 view / download
func (p Permission) Valid() bool {
	return p == PermissionView || p == PermissionDownload
}

// Allows download 权限包含 view
func (p Permission) Allows(want Permission) bool {
	if p == PermissionDownload {
		return want == PermissionView || want == PermissionDownload
	}
	return p == want
}

// DirectShare 对应 direct_shares 表, (file_id, recipient_id) 唯一
type DirectShare struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID         string     `gorm:"size:36;not null;uniqueIndex:idx_direct_share_file_recipient" json:"file_id"`
	RecipientID    string     `gorm:"size:64;not null;uniqueIndex:idx_direct_share_file_recipient;index" json:"recipient_id"`
	RecipientEmail string     `gorm:"size:255" json:"recipient_email"`
	RecipientName  string     `gorm:"size:255" json:"recipient_name"`
	Permission     Permission `gorm:"size:16;not null" json:"permission"`
	AccessCount    int64      `gorm:"not null;default:0" json:"access_count"`
	LastAccessed   *time.Time `json:"last_accessed"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	File *File `gorm:"foreignKey:FileID" json:"file,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (DirectShare) TableName() string {
	return "direct_shares"
}
