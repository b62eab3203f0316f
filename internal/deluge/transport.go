package deluge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	sessionCookieName = "_session_id"
	csrfHeaderName    = "X-Deluge-Token"

	methodAddTorrentURL = "core.add_torrent_url"
)

type rpcRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     int64         `json:"id"`
}

type rpcError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	ID     int64           `json:"id"`
}

// Transport 对单个面板执行带会话的 JSON-RPC 调用。
// 会话 cookie 和防伪 token 只在这里写入：任何响应携带了新值就更新。
type Transport struct {
	client  *resty.Client
	baseURL string

	mu        sync.Mutex
	sessionID string
	csrfToken string

	authPatterns []string
	nextID       atomic.Int64
}

// normalizeControlURL 确保面板地址不以 / 结尾
func normalizeControlURL(controlURL string) string {
	return strings.TrimSuffix(controlURL, "/")
}

func NewTransport(controlURL string, timeout time.Duration) *Transport {
	baseURL := normalizeControlURL(controlURL)

	client := resty.New().
		SetTimeout(timeout).
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetCookieJar(nil) // cookie 手动管理，Jar 会吞掉跨请求的 session 变化

	return &Transport{
		client:       client,
		baseURL:      baseURL,
		authPatterns: defaultAuthFailurePatterns,
	}
}

// BaseURL 返回规范化后的面板地址
func (t *Transport) BaseURL() string {
	return t.baseURL
}

// SetAuthFailurePatterns 替换认证失败的匹配模式 (新后端措辞变化时的扩展点)
func (t *Transport) SetAuthFailurePatterns(patterns []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.authPatterns = patterns
}

// HasSession 报告是否持有会话 cookie (不保证仍有效)
func (t *Transport) HasSession() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID != ""
}

// Call 执行一次 RPC 并分类结果。超时不在此层重试，重试是编排层的事。
func (t *Transport) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	body := rpcRequest{
		Method: method,
		Params: params,
		ID:     t.nextID.Add(1),
	}

	req := t.client.R().SetContext(ctx).SetBody(body)

	t.mu.Lock()
	if t.sessionID != "" {
		req.SetCookie(&http.Cookie{Name: sessionCookieName, Value: t.sessionID})
	}
	if t.csrfToken != "" {
		req.SetHeader(csrfHeaderName, t.csrfToken)
	}
	patterns := t.authPatterns
	t.mu.Unlock()

	resp, err := req.Post("/json")
	if err != nil {
		if isTimeoutErr(err) {
			return nil, ErrTimeout
		}
		return nil, &TransportError{Message: err.Error()}
	}

	// 任何响应带了新 token 都要捕获，不只是登录响应
	t.captureTokens(resp)

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		if resp.StatusCode() == http.StatusForbidden && method != methodAddTorrentURL {
			return nil, ErrAuthExpired
		}
		return nil, &TransportError{StatusCode: resp.StatusCode()}
	}

	var out rpcResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode(), Message: "malformed response body"}
	}

	if out.Error != nil && out.Error.Message != "" {
		if matchesAny(out.Error.Message, patterns) {
			return nil, ErrAuthExpired
		}
		return nil, &ServerError{Message: out.Error.Message, Code: out.Error.Code}
	}

	return out.Result, nil
}

func (t *Transport) captureTokens(resp *resty.Response) {
	var session, csrf string
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			session = c.Value
		}
	}
	csrf = resp.Header().Get(csrfHeaderName)

	if session == "" && csrf == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if session != "" {
		t.sessionID = session
	}
	if csrf != "" {
		t.csrfToken = csrf
	}
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
