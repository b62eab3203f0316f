package deluge

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// locate 按列表顺序逐个尝试候选主机，第一个成功者被采用。
// 串行而非并行，避免对守护进程发起连接风暴。
func (c *Client) locate(ctx context.Context, hosts []DaemonHost) (*DaemonHost, error) {
	c.mu.Lock()
	if c.activeDaemon != nil && c.activeDaemon.Status == StatusConnected {
		d := c.activeDaemon
		c.mu.Unlock()
		return d, nil
	}
	c.mu.Unlock()

	for i := range hosts {
		h := hosts[i]
		status, err := c.hostStatus(ctx, h.ID)
		if err != nil {
			log.Printf("deluge: host %s status query failed: %v", h.ID, err)
			continue
		}
		if status.Address != "" {
			h.Address = status.Address
		}
		if status.Port != 0 {
			h.Port = status.Port
		}
		h.Version = status.Version

		switch status.Status {
		case StatusConnected:
			h.Status = StatusConnected
			return c.adoptDaemon(h), nil
		case StatusOnline:
			if err := c.connectHost(ctx, h.ID); err != nil {
				log.Printf("deluge: connect to online host %s failed: %v", h.ID, err)
				continue
			}
			h.Status = StatusConnected
			return c.adoptDaemon(h), nil
		case StatusOffline:
			if err := c.startDaemon(ctx, h.Port); err != nil {
				log.Printf("deluge: start daemon on host %s failed: %v", h.ID, err)
				continue
			}
			if err := c.connectHost(ctx, h.ID); err != nil {
				log.Printf("deluge: connect to started host %s failed: %v", h.ID, err)
				continue
			}
			h.Status = StatusConnected
			return c.adoptDaemon(h), nil
		default:
			log.Printf("deluge: host %s reported unrecognized status %q, skipping", h.ID, status.Status)
		}
	}

	return nil, ErrNoDaemonAvailable
}

func (c *Client) adoptDaemon(h DaemonHost) *DaemonHost {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeDaemon = &h
	return c.activeDaemon
}

func (c *Client) hostStatus(ctx context.Context, hostID string) (DaemonHost, error) {
	raw, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, "web.get_host_status", []interface{}{hostID})
	})
	if err != nil {
		return DaemonHost{}, err
	}
	return parseHostEntry(raw)
}

// connectHost 对刚启动或尚未就绪的守护进程做有界重试：
// 最多 connectRetries 次，固定间隔，然后放弃这台主机
func (c *Client) connectHost(ctx context.Context, hostID string) error {
	attempts := c.connectRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.connectRetryDelay):
			}
		}
		_, lastErr = c.withReauth(ctx, func() (json.RawMessage, error) {
			return c.currentTransport().Call(ctx, "web.connect", []interface{}{hostID})
		})
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) startDaemon(ctx context.Context, port int) error {
	_, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, "web.start_daemon", []interface{}{port})
	})
	return err
}
