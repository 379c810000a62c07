package xerr

import "errors"

var (
	// 通用错误
	ErrInternalServer = errors.New("服务器内部错误")

	// 客户端请求错误
	ErrInvalidParams = errors.New("无效的请求参数")
	ErrFileTooLarge  = errors.New("上传文件过大，超出限制")

	// 认证与授权错误，不区分密码错误与令牌错误
	ErrUnauthorized = errors.New("凭证无效")
	ErrTokenInvalid = errors.New("认证 Token 无效或已过期")

	// 权限错误
	ErrPermissionDenied = errors.New("您没有操作此资源的权限")

	// 缓存
	ErrCacheMiss = errors.New("缓存未命中,key不存在")

	// 资源未找到错误
	ErrUserNotFound  = errors.New("用户不存在")
	ErrFileNotFound  = errors.New("文件不存在")
	ErrShareNotFound = errors.New("分享链接不存在")
	ErrGrantNotFound = errors.New("该用户没有此文件的分享授权")

	// 分享链接终态
	ErrShareExpired   = errors.New("分享链接已过期")
	ErrShareExhausted = errors.New("分享链接访问次数已用完")

	// 配额
	ErrQuotaExceeded = errors.New("超出配额限制")

	// 完整性
	ErrIntegrity = errors.New("数据完整性校验失败")

	// 数据库与外部服务错误
	ErrDatabaseError = errors.New("数据库操作失败")
	ErrStorageError  = errors.New("存储服务操作失败")
	ErrMQError       = errors.New("消息队列操作失败")
)
