package models

import (
	"time"
)

// User 对应 users 表, ID 为身份提供方的 subject
// 用户首次携带有效令牌访问时登记, 之后每次访问刷新展示信息
type User struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	Username    string `gorm:"size:150;index" json:"username"`
	Email       string `gorm:"size:255;index" json:"email"`
	DisplayName string `gorm:"size:255" json:"display_name"`
	TotalSpace  uint64 `gorm:"not null;default:0" json:"total_space"` // 0 表示使用全局默认配额
	UsedSpace   uint64 `gorm:"not null;default:0" json:"used_space"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定 GORM 使用的表名
func (User) TableName() string {
	return "users"
}

// StorageLimit 返回该用户生效的存储上限
func (u *User) StorageLimit(defaultLimit uint64) uint64 {
	if u.TotalSpace > 0 {
		return u.TotalSpace
	}
	return defaultLimit
}
