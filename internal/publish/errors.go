// publish/errors.go
package publish

import (
	"errors"
	"fmt"
	"time"
)

// 定义公共错误变量
var (
	ErrMissingCorrelationID = errors.New("missing correlation id")
	ErrNoContents           = errors.New("no content items")
	ErrNoPlatforms          = errors.New("no target platforms")
	ErrInvalidRequest       = errors.New("invalid publish request")
	ErrNoPublisher          = errors.New("no publisher for platform")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

// ==================== 失败分类 ====================

// FailureClass 平台发布失败的统一分类
type FailureClass string

const (
	ClassServerError FailureClass = "server_error" // 5xx 等价,可重试
	ClassRateLimited FailureClass = "rate_limited" // 429 等价,可重试
	ClassNetwork     FailureClass = "network"      // 连接/超时,可重试
	ClassPermanent   FailureClass = "permanent"    // 内容被拒等,不重试
)

// Retriable 判断该分类是否允许重试
func (c FailureClass) Retriable() bool {
	switch c {
	case ClassServerError, ClassRateLimited, ClassNetwork:
		return true
	default:
		return false
	}
}

// PublishError 平台发布器返回的已分类错误
type PublishError struct {
	Class      FailureClass
	Reason     string
	RetryAfter time.Duration // 平台给出的 retry-after 提示,仅限流时有意义
	Cause      error
}

func (e *PublishError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Reason)
}

func (e *PublishError) Unwrap() error { return e.Cause }

// ==================== 构造函数 ====================

func NewServerError(reason string, cause error) *PublishError {
	return &PublishError{Class: ClassServerError, Reason: reason, Cause: cause}
}

func NewNetworkError(reason string, cause error) *PublishError {
	return &PublishError{Class: ClassNetwork, Reason: reason, Cause: cause}
}

func NewRateLimited(reason string, retryAfter time.Duration) *PublishError {
	return &PublishError{Class: ClassRateLimited, Reason: reason, RetryAfter: retryAfter}
}

func NewPermanent(reason string) *PublishError {
	return &PublishError{Class: ClassPermanent, Reason: reason}
}

// ClassifyError 将任意错误归入四类之一;未实现 *PublishError 的按网络错误处理
func ClassifyError(err error) *PublishError {
	if err == nil {
		return nil
	}
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe
	}
	return &PublishError{Class: ClassNetwork, Reason: err.Error(), Cause: err}
}
