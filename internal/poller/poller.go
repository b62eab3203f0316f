package poller

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/seedbridge/seedbridge/internal/deluge"
	"github.com/seedbridge/seedbridge/internal/event"
)

// Connector 是轮询器需要的核心子集
type Connector interface {
	EnsureConnected(ctx context.Context, silent bool) (*deluge.ServerCapabilities, error)
	State() deluge.State
}

// Status 是 EventDaemonStatus 的 Payload
type Status struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// Manager 周期性地静默探测连接状态并发布到总线，
// popup 展示用它的结果，不需要自己发起 ensure-connected 风暴
type Manager struct {
	client   Connector
	bus      event.Bus
	interval time.Duration
	ticker   *time.Ticker
	quit     chan struct{}
}

func NewManager(client Connector, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Manager{
		client:   client,
		bus:      event.GlobalBus,
		interval: interval,
		quit:     make(chan struct{}),
	}
}

func (m *Manager) Start() {
	log.Println("Status poller started...")
	m.ticker = time.NewTicker(m.interval)
	go func() {
		for {
			select {
			case <-m.ticker.C:
				m.CheckStatus()
			case <-m.quit:
				m.ticker.Stop()
				return
			}
		}
	}()
	// 立即执行一次
	go m.CheckStatus()
}

func (m *Manager) Stop() {
	close(m.quit)
	log.Println("Status poller stopped.")
}

// CheckStatus 静默探测一次；错误只进状态事件，不弹通知
func (m *Manager) CheckStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := m.client.EnsureConnected(ctx, true)

	status := Status{State: m.client.State().String()}
	if err != nil {
		status.Error = err.Error()
		if !errors.Is(err, deluge.ErrNotConfigured) {
			log.Printf("Poller: connection check failed: %v", err)
		}
	}
	m.bus.Publish(event.EventDaemonStatus, status)
}
