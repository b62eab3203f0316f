package deluge

import (
	"errors"
	"fmt"
	"strings"
)

// 错误分类，调用方用 errors.Is / errors.As 判断
var (
	// ErrNotConfigured: 没有任何连接配置，重试无意义，用户必须先配置
	ErrNotConfigured = errors.New("deluge: no connection configured")

	// ErrAuthExpired: 面板会话失效，由 withReauth 自动恢复一次
	ErrAuthExpired = errors.New("deluge: session expired")

	// ErrInvalidCredentials: 密码错误，必须由用户处理
	ErrInvalidCredentials = errors.New("deluge: invalid credentials")

	// ErrNoDaemonAvailable: 所有候选主机都无法连接
	ErrNoDaemonAvailable = errors.New("deluge: no daemon available")

	// ErrRemoteDisabled: 服务端 allow_remote 为 false
	ErrRemoteDisabled = errors.New("deluge: remote connections disabled on server")

	// ErrRemoteAccessDenied: 目标站点拒绝了种子抓取 (cookie 不足)
	ErrRemoteAccessDenied = errors.New("deluge: target site denied torrent fetch")

	// ErrTimeout: 单次 RPC 超时，不在 Transport 层重试
	ErrTimeout = errors.New("deluge: request timed out")
)

// ServerError 是后端在 2xx 响应里通过 error 字段上报的业务错误
type ServerError struct {
	Message string
	Code    int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("deluge: server error: %s", e.Message)
}

// TransportError 是 HTTP 层面的失败 (非 2xx 或网络错误)
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("deluge: transport error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("deluge: transport error: %s", e.Message)
}

// defaultAuthFailurePatterns 匹配三代后端各自的认证失败措辞
// 大小写不敏感的子串匹配；可在 Transport 上替换以适配新版本
var defaultAuthFailurePatterns = []string{
	"not authenticated",
	"session expired",
	"no session exists",
	"invalid session",
}

func matchesAny(message string, patterns []string) bool {
	lower := strings.ToLower(message)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// badArgsPatterns 识别旧版后端拒绝三参数 add_torrent_url 的报错
// (版本代差，不是瞬时故障，只重试一次备用参数形态)
var badArgsPatterns = []string{
	"takes exactly",
	"takes at most",
	"unexpected keyword argument",
	"too many arguments",
}

func isBadArgsError(err error) bool {
	var se *ServerError
	if !errors.As(err, &se) {
		return false
	}
	return matchesAny(se.Message, badArgsPatterns)
}
