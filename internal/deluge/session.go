package deluge

import (
	"context"
	"fmt"
	"log"
)

// ensureSession 探测会话有效性，失效则用配置的密码登录。
// 登录名义上成功后还要再探测一次确认可用：面板的会话管道偶尔没生效，
// 必须在这里抓出来，而不是留到后面变成莫名其妙的失败。
func (c *Client) ensureSession(ctx context.Context, conn ConnectionConfig, silent bool) error {
	ok, err := c.checkSession(ctx)
	if err == nil && ok {
		return nil
	}
	if err != nil {
		log.Printf("deluge: session probe failed: %v", err)
	}

	if conn.Password == "" && !c.currentTransport().HasSession() {
		if !silent {
			c.notify("Deluge connection is missing a password",
				"Set the web UI password on the options page.",
				10000, "not-configured", "error")
		}
		return ErrNotConfigured
	}

	if err := c.login(ctx, conn.Password); err != nil {
		if !silent {
			c.notify("Could not log in to the Deluge web UI",
				"Check the configured password.",
				10000, "login-failed", "error")
		}
		return err
	}

	// 确认会话真的可用
	ok, err = c.checkSession(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: session did not take effect after login", ErrInvalidCredentials)
	}
	return nil
}

// checkSession 轻量探测当前会话
func (c *Client) checkSession(ctx context.Context) (bool, error) {
	raw, err := c.currentTransport().Call(ctx, "auth.check_session", nil)
	if err != nil {
		return false, err
	}
	return parseBool(raw), nil
}

// login 执行 auth.login；返回 false 表示密码被拒绝
func (c *Client) login(ctx context.Context, password string) error {
	raw, err := c.currentTransport().Call(ctx, "auth.login", []interface{}{password})
	if err != nil {
		return err
	}
	if !parseBool(raw) {
		return ErrInvalidCredentials
	}
	return nil
}
