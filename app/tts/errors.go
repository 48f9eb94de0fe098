package tts

import (
	"errors"
	"fmt"
)

// AuthError 凭证无效或缺失，同一供应商在人工干预前不应重试
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s 凭证错误: %s", e.Provider, e.Message)
}

// ConfigError 配置错误，启动阶段视为致命
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "配置错误: " + e.Message
}

// RateLimitedError 被供应商限流，等待后可对同一供应商重试
type RateLimitedError struct {
	Provider   string
	RetryAfter int // 秒，0 表示未知
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s 触发限流", e.Provider)
}

// TextTooLongError 文本超过供应商上限，不应对同一供应商重试该请求
type TextTooLongError struct {
	Provider  string
	Length    int
	MaxLength int
}

func (e *TextTooLongError) Error() string {
	return fmt.Sprintf("文本超长: %d 字符，%s 上限为 %d", e.Length, e.Provider, e.MaxLength)
}

// TransportError 网络超时或连接失败，适合退避后重试
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s 网络错误: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProviderUnavailableError 供应商被禁用或校验失败，已从选择池中排除
type ProviderUnavailableError struct {
	Provider string
	Reason   string
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("供应商 %s 不可用: %s", e.Provider, e.Reason)
}

// fromHTTPStatus 根据 HTTP 状态码构造对应的错误类型
func fromHTTPStatus(provider string, status int, body string) error {
	switch status {
	case 401, 403:
		return &AuthError{Provider: provider, Message: body}
	case 429:
		return &RateLimitedError{Provider: provider}
	default:
		return fmt.Errorf("%s 请求失败，状态码 %d: %s", provider, status, body)
	}
}

// retrySameProvider 判断错误是否适合对同一供应商重试
func retrySameProvider(err error) bool {
	var rateLimited *RateLimitedError
	var transport *TransportError
	return errors.As(err, &rateLimited) || errors.As(err, &transport)
}
