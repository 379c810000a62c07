package xerr

// 定义了统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	InvalidParamsCode = 40000 // 无效的请求参数
	FileTooLargeCode  = 40003 // 文件过大

	// --- 认证与授权错误系列 (401xx) ---
	UnauthorizedCode = 40100 // 通用未授权
	TokenInvalidCode = 40101 // Token 无效或过期

	// --- 权限错误系列 (403xx) ---
	PermissionDeniedCode = 40301 // 权限不足

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode      = 40400 // 通用资源未找到
	UserNotFoundCode  = 40401 // 用户不存在
	FileNotFoundCode  = 40402 // 文件不存在
	ShareNotFoundCode = 40404 // 分享链接不存在

	// --- 分享生命周期终态 (410xx) ---
	ShareExpiredCode   = 41001 // 分享链接已过期
	ShareExhaustedCode = 41002 // 分享链接访问次数已用完

	// --- 配额错误系列 (413xx) ---
	StorageQuotaExceededCode = 41301 // 存储空间不足
	LinkQuotaExceededCode    = 41302 // 分享链接数量已达上限

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000 // 服务器内部通用错误
	DatabaseErrorCode       = 50001 // 数据库操作失败
	StorageErrorCode        = 50002 // 存储服务操作失败
	MQErrorCode             = 50003 // 消息队列操作失败
	IntegrityErrorCode      = 50004 // 密文完整性校验失败
)
