package deluge

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/seedbridge/seedbridge/internal/event"
)

// Settings 是核心消费的配置存储契约，由外层 (db-backed store) 实现
type Settings interface {
	// Connections 返回有序连接列表，首条为激活目标
	Connections() ([]ConnectionConfig, error)
	// SendCookies 站点 cookie 转发策略，默认放行
	SendCookies() bool
}

// State 连接编排状态机
type State int

const (
	StateUnconfigured State = iota
	StateAuthenticating
	StateDaemonDiscovery
	StateConfigured
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateDaemonDiscovery:
		return "daemon_discovery"
	case StateConfigured:
		return "configured"
	default:
		return "unconfigured"
	}
}

// NotifyFunc 通知回调，fire-and-forget，核心不等待
type NotifyFunc func(message, context string, durationMs int, dedupeKey, severity string)

type pendingConnect struct {
	done chan struct{}
	caps *ServerCapabilities
	err  error
}

// Client 持有面板会话与已连接守护进程的全部可变状态。
// 单个进程一个实例；并发 EnsureConnected 会合流到同一次尝试。
type Client struct {
	settings Settings
	notify   NotifyFunc

	timeout           time.Duration
	connectRetries    int
	connectRetryDelay time.Duration

	mu           sync.Mutex
	transport    *Transport
	activeConn   ConnectionConfig
	activeDaemon *DaemonHost
	state        State
	pending      *pendingConnect
}

// Option 调整 Client 行为，主要供测试收紧超时与重试间隔
type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithConnectRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		c.connectRetries = attempts
		c.connectRetryDelay = delay
	}
}

func WithNotify(fn NotifyFunc) Option {
	return func(c *Client) { c.notify = fn }
}

func NewClient(settings Settings, opts ...Option) *Client {
	c := &Client{
		settings:          settings,
		notify:            event.Notify,
		timeout:           20 * time.Second,
		connectRetries:    5,
		connectRetryDelay: 5 * time.Second,
		state:             StateUnconfigured,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State 返回当前编排状态 (供状态轮询展示)
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect 公开的连接操作：完整走一遍 ensure-connected 流程
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.EnsureConnected(ctx, false)
	return err
}

// EnsureConnected 是所有高层操作的统一入口：读配置 → 会话 → 守护进程发现
// → 服务端配置。并发调用合流：后来者等待进行中的那次尝试。
func (c *Client) EnsureConnected(ctx context.Context, silent bool) (*ServerCapabilities, error) {
	c.mu.Lock()
	if p := c.pending; p != nil {
		c.mu.Unlock()
		select {
		case <-p.done:
			return p.caps, p.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p := &pendingConnect{done: make(chan struct{})}
	c.pending = p
	c.mu.Unlock()

	caps, err := c.connect(ctx, silent)

	p.caps, p.err = caps, err
	close(p.done)

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()

	return caps, err
}

// connect 每次都从持久化配置重新推导，不信任残留状态：
// 后端可能在 HTTP 会话之外断开守护进程。
func (c *Client) connect(ctx context.Context, silent bool) (*ServerCapabilities, error) {
	conns, err := c.settings.Connections()
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		c.setState(StateUnconfigured)
		if !silent {
			c.notify("Deluge connection is not configured",
				"Open the options page and add a web UI address.",
				10000, "not-configured", "error")
		}
		return nil, ErrNotConfigured
	}
	conn := conns[0]

	c.ensureTransport(conn)

	c.setState(StateAuthenticating)
	if err := c.ensureSession(ctx, conn, silent); err != nil {
		return nil, err
	}

	c.setState(StateDaemonDiscovery)
	connected, err := c.webConnected(ctx)
	if err != nil {
		return nil, err
	}
	if !connected {
		// 连接状态在服务端，本地缓存的 ActiveDaemon 不再可信
		c.clearActiveDaemon()
		hosts, err := c.fetchHosts(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := c.locate(ctx, hosts); err != nil {
			return nil, err
		}
	}

	caps, err := c.fetchServerConfig(ctx)
	if err != nil {
		return nil, err
	}
	if !caps.AllowRemote {
		if !silent {
			c.notify("Remote connections are disabled on this Deluge server",
				"Enable allow_remote in the web UI preferences.",
				10000, "remote-disabled", "error")
		}
		return nil, ErrRemoteDisabled
	}

	c.setState(StateConfigured)
	return caps, nil
}

// ensureTransport 激活目标变化时重建 Transport，丢弃旧会话和守护进程缓存
func (c *Client) ensureTransport(conn ConnectionConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	normalized := normalizeControlURL(conn.ControlURL)
	if c.transport == nil || c.transport.BaseURL() != normalized {
		c.transport = NewTransport(conn.ControlURL, c.timeout)
		c.activeDaemon = nil
	}
	c.activeConn = conn
}

func (c *Client) currentTransport() *Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) clearActiveDaemon() {
	c.mu.Lock()
	c.activeDaemon = nil
	c.mu.Unlock()
}

// withReauth 捕获恰好一次 ErrAuthExpired：重新登录并重放原调用一次，
// 防止 "过期/重试" 之间无限往复。
func (c *Client) withReauth(ctx context.Context, op func() (json.RawMessage, error)) (json.RawMessage, error) {
	res, err := op()
	if !errors.Is(err, ErrAuthExpired) {
		return res, err
	}

	c.mu.Lock()
	conn := c.activeConn
	c.mu.Unlock()

	log.Printf("deluge: session expired, re-authenticating against %s", conn.ControlURL)
	if err := c.login(ctx, conn.Password); err != nil {
		return nil, err
	}
	return op()
}

func (c *Client) webConnected(ctx context.Context) (bool, error) {
	raw, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, "web.connected", nil)
	})
	if err != nil {
		return false, err
	}
	return parseBool(raw), nil
}

func (c *Client) fetchHosts(ctx context.Context) ([]DaemonHost, error) {
	raw, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, "web.get_hosts", nil)
	})
	if err != nil {
		return nil, err
	}
	return parseHostList(raw)
}

func (c *Client) fetchServerConfig(ctx context.Context) (*ServerCapabilities, error) {
	raw, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, "core.get_config", nil)
	})
	if err != nil {
		return nil, err
	}
	return parseServerConfig(raw)
}
