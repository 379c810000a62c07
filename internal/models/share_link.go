package models

import (
	"time"
)

// LinkState 分享链接的生命周期状态
type LinkState string

const (
	LinkActive    LinkState = "active"
	LinkExpired   LinkState = "expired"
	LinkExhausted LinkState = "exhausted"
	// 有效但设置了密码, 访问者需先校验密码
	LinkPasswordPending LinkState = "password_pending"
)

// ShareLink 对应 share_links 表
// AccessCount 只增不减, 不做硬删除, 撤销通过把 ExpiresAt 设为当前时间实现
type ShareLink struct {
	ID                  uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID              string     `gorm:"size:36;not null;index" json:"file_id"`
	UserID              string     `gorm:"size:64;not null;index" json:"owner_id"`
	Token               string     `gorm:"size:64;uniqueIndex;not null" json:"token"`
	ExpiresAt           time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastAccessed        *time.Time `json:"last_accessed"`
	AccessCount         int64      `gorm:"not null;default:0" json:"access_count"`
	MaxAccessCount      *int64     `json:"max_access_count"`
	IsPasswordProtected bool       `gorm:"not null;default:false" json:"is_password_protected"`
	PasswordHash        string     `gorm:"size:255" json:"-"`

	// 定义 GORM 关联，方便预加载
	File *File `gorm:"foreignKey:FileID" json:"file,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (ShareLink) TableName() string {
	return "share_links"
}

// State 按过期时间和访问次数判定状态, 两者同时满足时报告过期
func (l *ShareLink) State(now time.Time) LinkState {
	if !now.Before(l.ExpiresAt) {
		return LinkExpired
	}
	if l.MaxAccessCount != nil && l.AccessCount >= *l.MaxAccessCount {
		return LinkExhausted
	}
	return LinkActive
}

// VisitorState 展示给未授权访问者的状态
func (l *ShareLink) VisitorState(now time.Time) LinkState {
	state := l.State(now)
	if state == LinkActive && l.IsPasswordProtected {
		return LinkPasswordPending
	}
	return state
}
