package deluge

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"sort"
	"strings"
)

// labelPluginNames 已知的标签类插件 (大小写不敏感匹配)
var labelPluginNames = []string{"label", "labelplus"}

// AddTorrent 把磁力链或种子地址转发给已连接的守护进程。
// cookies 是调用方按本次调用提供的站点 cookie (不是面板的认证 cookie)，
// labels 是插件名 → 标签值，成功后尽力而为地打标。
// 返回后端分配的种子 ID。
func (c *Client) AddTorrent(ctx context.Context, rawURL string, cookies map[string]string, labels map[string]string, options map[string]interface{}) (string, error) {
	if _, err := c.EnsureConnected(ctx, false); err != nil {
		return "", err
	}

	// 未知键原样透传，兼容本客户端未建模的后端参数
	opts := make(map[string]interface{}, len(options))
	for k, v := range options {
		opts[k] = v
	}

	// 磁力链直接提交；其他地址若未编码则补一次百分号编码
	target := rawURL
	if !strings.HasPrefix(rawURL, "magnet:") {
		target = encodeTorrentURL(rawURL)
	}

	cookieHeader := ""
	if len(cookies) > 0 && c.settings.SendCookies() {
		cookieHeader = serializeCookies(cookies)
	}
	headers := map[string]interface{}{}
	if cookieHeader != "" {
		headers["Cookie"] = cookieHeader
	}

	raw, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, methodAddTorrentURL,
			[]interface{}{target, opts, headers})
	})

	if err != nil && isBadArgsError(err) {
		// 老后端不认三参数形态；版本代差不是瞬时故障，只换形态重试一次
		log.Printf("deluge: backend rejected 3-arg add_torrent_url, retrying 2-arg shape")
		legacyOpts := make(map[string]interface{}, len(opts)+1)
		for k, v := range opts {
			legacyOpts[k] = v
		}
		if cookieHeader != "" {
			legacyOpts["cookie"] = cookieHeader
		}
		raw, err = c.withReauth(ctx, func() (json.RawMessage, error) {
			return c.currentTransport().Call(ctx, methodAddTorrentURL,
				[]interface{}{target, legacyOpts})
		})
	}

	if err != nil {
		if cookieHeader != "" && isForbidden(err) {
			// 站点要求的认证比直接 URL 抓取能带上的更多
			c.notify("The site refused to serve the torrent file",
				"Your cookies may not be enough to download it.",
				10000, "remote-access-denied", "error")
			return "", ErrRemoteAccessDenied
		}
		c.notify("Failed to send the torrent to Deluge", err.Error(),
			10000, "add-failed", "error")
		return "", err
	}

	var torrentID string
	if err := json.Unmarshal(raw, &torrentID); err != nil {
		// 部分后端对重复种子返回 null
		torrentID = ""
	}

	// 标签是锦上添花，种子已经入队：打标失败只记日志，不回滚
	for plugin, label := range labels {
		if label == "" {
			continue
		}
		method := strings.ToLower(plugin) + ".set_torrent"
		_, lerr := c.withReauth(ctx, func() (json.RawMessage, error) {
			return c.currentTransport().Call(ctx, method, []interface{}{torrentID, label})
		})
		if lerr != nil {
			log.Printf("deluge: label assignment %s=%q failed: %v", plugin, label, lerr)
		}
	}

	return torrentID, nil
}

// GetPluginInfo 查询启用的插件、标签和监视目录。
// 标签发现绝不阻塞添加种子：三级回退全部失败也只返回空列表。
func (c *Client) GetPluginInfo(ctx context.Context) (*PluginInfo, error) {
	if _, err := c.EnsureConnected(ctx, false); err != nil {
		return nil, err
	}

	plugins, err := c.fetchPlugins(ctx)
	if err != nil {
		return nil, err
	}

	info := &PluginInfo{Plugins: plugins, Labels: []string{}}
	if hasLabelPlugin(plugins) {
		info.Labels = c.fetchLabels(ctx)
	}
	if containsFold(plugins, "autoadd") {
		info.WatchDirectories = c.fetchWatchDirectories(ctx)
	}
	return info, nil
}

// GetServerConfig 返回服务端能力快照。调用方依赖其内容 (如 allow_remote
// 闸门)，所以配置与插件查询失败都原样上抛。
func (c *Client) GetServerConfig(ctx context.Context) (*ServerCapabilities, error) {
	caps, err := c.EnsureConnected(ctx, false)
	if err != nil {
		return nil, err
	}

	plugins, err := c.fetchPlugins(ctx)
	if err != nil {
		return nil, err
	}
	caps.Plugins = plugins
	if hasLabelPlugin(plugins) {
		caps.Labels = c.fetchLabels(ctx)
	}
	if containsFold(plugins, "autoadd") {
		caps.WatchDirectories = c.fetchWatchDirectories(ctx)
	}
	return caps, nil
}

func (c *Client) fetchPlugins(ctx context.Context) ([]string, error) {
	raw, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, "web.get_plugins", nil)
	})
	if err != nil {
		return nil, err
	}

	// 2.x 返回 {"enabled_plugins": [...], "available_plugins": [...]}，
	// 更早的版本直接返回数组
	var obj struct {
		EnabledPlugins []string `json:"enabled_plugins"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.EnabledPlugins != nil {
		return obj.EnabledPlugins, nil
	}
	if list, err := parseStringList(raw); err == nil {
		return list, nil
	}
	return []string{}, nil
}

// fetchLabels 依次尝试三种调用形态，前一种失败才试下一种：
// 当前 API → 旧式 config-get → 替代插件名。全失败返回空列表而非错误。
func (c *Client) fetchLabels(ctx context.Context) []string {
	if labels, err := c.labelsViaGetLabels(ctx, "label.get_labels"); err == nil {
		return labels
	} else {
		log.Printf("deluge: label.get_labels failed: %v", err)
	}

	if labels, err := c.labelsViaConfig(ctx); err == nil {
		return labels
	} else {
		log.Printf("deluge: label.get_config fallback failed: %v", err)
	}

	if labels, err := c.labelsViaGetLabels(ctx, "labelplus.get_labels"); err == nil {
		return labels
	} else {
		log.Printf("deluge: labelplus.get_labels fallback failed: %v", err)
	}

	return []string{}
}

func (c *Client) labelsViaGetLabels(ctx context.Context, method string) ([]string, error) {
	raw, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, method, nil)
	})
	if err != nil {
		return nil, err
	}
	return parseStringList(raw)
}

func (c *Client) labelsViaConfig(ctx context.Context) ([]string, error) {
	raw, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, "label.get_config", nil)
	})
	if err != nil {
		return nil, err
	}
	var cfg struct {
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.Labels == nil {
		return []string{}, nil
	}
	return cfg.Labels, nil
}

// fetchWatchDirectories 读取 AutoAdd 插件的监视目录，尽力而为
func (c *Client) fetchWatchDirectories(ctx context.Context) []string {
	raw, err := c.withReauth(ctx, func() (json.RawMessage, error) {
		return c.currentTransport().Call(ctx, "autoadd.get_watchdirs", nil)
	})
	if err != nil {
		log.Printf("deluge: autoadd.get_watchdirs failed: %v", err)
		return nil
	}
	var dirs map[string]struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &dirs); err != nil {
		return nil
	}
	paths := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d.Path != "" {
			paths = append(paths, d.Path)
		}
	}
	sort.Strings(paths)
	return paths
}

func hasLabelPlugin(plugins []string) bool {
	for _, name := range labelPluginNames {
		if containsFold(plugins, name) {
			return true
		}
	}
	return false
}

func containsFold(list []string, target string) bool {
	for _, s := range list {
		if strings.EqualFold(s, target) {
			return true
		}
	}
	return false
}

// serializeCookies 把 cookie 映射序列化为 Cookie 头格式，键排序保证稳定
func serializeCookies(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+cookies[name])
	}
	return strings.Join(pairs, "; ")
}

// encodeTorrentURL 对尚未编码的地址做百分号编码；已编码的原样保留
func encodeTorrentURL(raw string) string {
	if decoded, err := url.QueryUnescape(raw); err == nil && decoded != raw {
		return raw // 已经带了百分号转义
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.String()
}

// isForbidden 判断错误是否 403 性质 (HTTP 403 或后端消息里带 403)
func isForbidden(err error) bool {
	var te *TransportError
	if errors.As(err, &te) && te.StatusCode == 403 {
		return true
	}
	var se *ServerError
	return errors.As(err, &se) && strings.Contains(se.Message, "403")
}
