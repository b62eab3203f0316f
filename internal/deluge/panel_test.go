package deluge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// rpcCall 记录 fakePanel 收到的一次调用
type rpcCall struct {
	Method string
	Params []interface{}
	Cookie string
	CSRF   string
}

// routeFunc 决定 fakePanel 对某次调用的应答；n 是该方法的第几次调用 (从 0 起)
type routeFunc func(method string, params []interface{}, n int) (result interface{}, errMsg string)

// fakePanel 模拟 Deluge Web 面板的 /json 端点
type fakePanel struct {
	t *testing.T

	mu     sync.Mutex
	calls  []rpcCall
	counts map[string]int

	route      routeFunc
	httpStatus func(method string) int // 非 0 时直接返回该 HTTP 状态
	delay      time.Duration
	noSession  bool // 登录时不下发会话 cookie

	srv *httptest.Server
}

func newFakePanel(t *testing.T, route routeFunc) *fakePanel {
	t.Helper()
	p := &fakePanel{
		t:      t,
		counts: make(map[string]int),
		route:  route,
	}
	p.srv = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePanel) URL() string { return p.srv.URL }

func (p *fakePanel) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string          `json:"method"`
		Params []interface{}   `json:"params"`
		ID     json.RawMessage `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	n := p.counts[req.Method]
	p.counts[req.Method]++
	p.calls = append(p.calls, rpcCall{
		Method: req.Method,
		Params: req.Params,
		Cookie: r.Header.Get("Cookie"),
		CSRF:   r.Header.Get(csrfHeaderName),
	})
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if p.httpStatus != nil {
		if status := p.httpStatus(req.Method); status != 0 {
			w.WriteHeader(status)
			return
		}
	}

	if req.Method == "auth.login" && !p.noSession {
		http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "sess-1"})
	}

	result, errMsg := p.route(req.Method, req.Params, n)

	if len(req.ID) == 0 {
		req.ID = json.RawMessage("0")
	}
	resp := map[string]interface{}{"id": req.ID, "result": result, "error": nil}
	if errMsg != "" {
		resp["result"] = nil
		resp["error"] = map[string]interface{}{"message": errMsg, "code": 1}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (p *fakePanel) callCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[method]
}

func (p *fakePanel) callsOf(method string) []rpcCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []rpcCall
	for _, c := range p.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakePanel) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePanel) allCalls() []rpcCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]rpcCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// happyRoute 返回一套能让完整连接流程成功的默认应答，逐方法覆盖
func happyRoute(overrides map[string]routeFunc) routeFunc {
	return func(method string, params []interface{}, n int) (interface{}, string) {
		if fn, ok := overrides[method]; ok {
			return fn(method, params, n)
		}
		switch method {
		case "auth.check_session", "auth.login", "web.connected":
			return true, ""
		case "core.get_config":
			return map[string]interface{}{
				"allow_remote":        true,
				"download_location":   "/downloads",
				"move_completed":      false,
				"move_completed_path": "",
				"add_paused":          false,
			}, ""
		case "web.get_plugins":
			return map[string]interface{}{"enabled_plugins": []string{"Label"}}, ""
		case "label.get_labels":
			return []string{}, ""
		case methodAddTorrentURL:
			return "torrent-1", ""
		case "label.set_torrent":
			return nil, ""
		case "web.start_daemon", "web.connect":
			return nil, ""
		default:
			return nil, "unknown method " + method
		}
	}
}

// stubSettings 内存版配置存储
type stubSettings struct {
	conns       []ConnectionConfig
	err         error
	sendCookies bool
}

func (s *stubSettings) Connections() ([]ConnectionConfig, error) { return s.conns, s.err }
func (s *stubSettings) SendCookies() bool                        { return s.sendCookies }

// newTestClient 接在 fakePanel 上的客户端，通知静音、重试间隔收紧
func newTestClient(p *fakePanel, password string) *Client {
	return NewClient(
		&stubSettings{
			conns:       []ConnectionConfig{{ControlURL: p.URL(), Password: password}},
			sendCookies: true,
		},
		WithTimeout(2*time.Second),
		WithConnectRetry(3, 5*time.Millisecond),
		WithNotify(func(string, string, int, string, string) {}),
	)
}
