package identity

import (
	"context"
	"slices"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"
)

// Identity 身份提供方认证后的主体, 核心逻辑只看这个结构, 不读原始令牌
type Identity struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
}

// Oracle 校验 bearer 凭证并返回身份
type Oracle interface {
	Authenticate(ctx context.Context, bearer string) (*Identity, error)
}

func (i *Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// IsGuest 只持有 guest 角色的身份不能上传或分享
func (i *Identity) IsGuest() bool {
	return i.HasRole(RoleGuest) && !i.HasRole(RoleUser) && !i.HasRole(RoleAdmin)
}

// Name 展示用名称
func (i *Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Username
}
