package models

import (
	"time"
)

// AccessType 访问类型
type AccessType string

const (
	AccessView     AccessType = "view"
	AccessDownload AccessType = "download"
)

// AccessEvent 对应 access_events 表, 只追加不修改
// 文件删除后保留记录, FileDeleted 置为 true, FileID 不再指向有效文件
type AccessEvent struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID      string     `gorm:"size:36;not null;index" json:"file_id"`
	FileDeleted bool       `gorm:"not null;default:false" json:"file_deleted"`
	ActorID     *string    `gorm:"size:64;index" json:"actor_id"` // 匿名链接访问为空
	ShareLinkID *uint64    `gorm:"index" json:"share_link_id"`
	AccessedAt  time.Time  `gorm:"not null;index" json:"accessed_at"`
	AccessType  AccessType `gorm:"size:16;not null" json:"access_type"`
	IPAddress   string     `gorm:"size:45" json:"ip_address"`
	UserAgent   string     `gorm:"size:512" json:"user_agent"`
}

// TableName 指定 GORM 使用的表名
func (AccessEvent) TableName() string {
	return "access_events"
}

// AllModels 返回需要迁移的全部模型
func AllModels() []any {
	return []any{
		&User{},
		&File{},
		&ShareLink{},
		&DirectShare{},
		&AccessEvent{},
	}
}
