package xerr

import (
	"errors"
	"fmt"
)

// CodeError 结构体用于在服务层传递带有业务码的错误
type CodeError struct {
	Code int   // 业务错误码
	Err  error // 被包裹的底层错误
}

func (e *CodeError) Error() string {
	return e.Err.Error()
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

// NewCodeError 创建一个 CodeError 实例
func NewCodeError(code int, err error) *CodeError {
	return &CodeError{Code: code, Err: err}
}

// QuotaKind 区分存储配额与链接数量配额
type QuotaKind string

const (
	QuotaStorage QuotaKind = "storage"
	QuotaLinks   QuotaKind = "share_links"
)

// QuotaError 携带触发的具体限制，errors.Is(err, ErrQuotaExceeded) 为真
type QuotaError struct {
	Kind      QuotaKind
	Limit     uint64
	Used      uint64
	Requested uint64
}

func (e *QuotaError) Error() string {
	if e.Kind == QuotaLinks {
		return fmt.Sprintf("%s: 分享链接 %d/%d", ErrQuotaExceeded, e.Used, e.Limit)
	}
	return fmt.Sprintf("%s: 已用 %d 字节, 请求 %d 字节, 上限 %d 字节", ErrQuotaExceeded, e.Used, e.Requested, e.Limit)
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// Is 判断错误是否为指定的错误类型
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// AsQuota 取出配额错误详情
func AsQuota(err error) (*QuotaError, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
