package deluge

import (
	"encoding/json"
	"fmt"
)

// DaemonStatus 面板上报的守护进程状态
type DaemonStatus string

const (
	StatusOffline   DaemonStatus = "Offline"
	StatusOnline    DaemonStatus = "Online"
	StatusConnected DaemonStatus = "Connected"
)

// DaemonHost 面板通过 web.get_hosts / web.get_host_status 公布的候选主机
// 每次连接流程都重新拉取，不持久化
type DaemonHost struct {
	ID      string       `json:"id"`
	Address string       `json:"address"`
	Port    int          `json:"port"`
	Status  DaemonStatus `json:"status"`
	Version string       `json:"version,omitempty"`
}

// ConnectionConfig 一条面板连接配置，列表首条为激活目标
type ConnectionConfig struct {
	ControlURL string `json:"control_url"`
	Password   string `json:"password"`
}

// ServerCapabilities 每个编排周期重建，不跨周期缓存
// (插件状态可能被 Web UI 外部修改)
type ServerCapabilities struct {
	AllowRemote       bool     `json:"allow_remote"`
	DownloadLocation  string   `json:"download_location"`
	MoveCompleted     bool     `json:"move_completed"`
	MoveCompletedPath string   `json:"move_completed_path"`
	AddPaused         bool     `json:"add_paused"`
	Plugins           []string `json:"plugins"`
	Labels            []string `json:"labels,omitempty"`
	WatchDirectories  []string `json:"watch_directories,omitempty"`
}

// PluginInfo 是 GetPluginInfo 的返回值
type PluginInfo struct {
	Plugins          []string `json:"plugins"`
	Labels           []string `json:"labels"`
	WatchDirectories []string `json:"watch_directories"`
}

var knownStatuses = map[string]DaemonStatus{
	"Offline":   StatusOffline,
	"Online":    StatusOnline,
	"Connected": StatusConnected,
}

// parseHostEntry 解析 get_hosts / get_host_status 返回的一条主机记录。
// 1.x 返回 [id, host, port, status, version]，2.x 返回 [id, status, version]，
// 按位置猜测字段，status 通过已知状态集识别。
func parseHostEntry(raw json.RawMessage) (DaemonHost, error) {
	var fields []interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return DaemonHost{}, fmt.Errorf("malformed host entry: %w", err)
	}
	if len(fields) == 0 {
		return DaemonHost{}, fmt.Errorf("empty host entry")
	}

	host := DaemonHost{}
	if id, ok := fields[0].(string); ok {
		host.ID = id
	}

	statusIdx := -1
	for i := 1; i < len(fields); i++ {
		switch v := fields[i].(type) {
		case string:
			if st, ok := knownStatuses[v]; ok && statusIdx < 0 {
				host.Status = st
				statusIdx = i
			} else if statusIdx >= 0 && host.Version == "" {
				host.Version = v
			} else if host.Address == "" {
				host.Address = v
			}
		case float64:
			if host.Port == 0 {
				host.Port = int(v)
			}
		}
	}
	return host, nil
}

func parseHostList(raw json.RawMessage) ([]DaemonHost, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("malformed host list: %w", err)
	}
	hosts := make([]DaemonHost, 0, len(entries))
	for _, e := range entries {
		h, err := parseHostEntry(e)
		if err != nil {
			continue // 跳过无法识别的条目
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// parseServerConfig 提取 core.get_config 中本客户端关心的字段
func parseServerConfig(raw json.RawMessage) (*ServerCapabilities, error) {
	var cfg struct {
		AllowRemote       bool   `json:"allow_remote"`
		DownloadLocation  string `json:"download_location"`
		MoveCompleted     bool   `json:"move_completed"`
		MoveCompletedPath string `json:"move_completed_path"`
		AddPaused         bool   `json:"add_paused"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("malformed server config: %w", err)
	}
	return &ServerCapabilities{
		AllowRemote:       cfg.AllowRemote,
		DownloadLocation:  cfg.DownloadLocation,
		MoveCompleted:     cfg.MoveCompleted,
		MoveCompletedPath: cfg.MoveCompletedPath,
		AddPaused:         cfg.AddPaused,
	}, nil
}

// parseBool 兼容 true/false 与 1/0 两种返回
func parseBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return false
}

func parseStringList(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}
