package model

import (
	"gorm.io/gorm"
)

// Connection 代表一个 Deluge Web 面板连接配置
// Position 决定尝试顺序，第一条为当前激活目标
type Connection struct {
	gorm.Model
	ControlURL string `json:"control_url" form:"ControlURL" gorm:"uniqueIndex"` // Web 面板地址 (如 http://nas:8112)
	Password   string `json:"password" form:"Password"`                        // Web 面板密码
	Position   int    `json:"position" gorm:"index"`                           // 排序，0 为激活项
}

// AddLog 记录转发历史，便于 popup 展示最近提交
type AddLog struct {
	gorm.Model
	URL       string // 磁力链或种子地址
	TorrentID string // 后端返回的种子 ID
	Label     string // 请求的分类标签
	Domain    string // 来源站点域名
	Status    string // "added", "failed"
	Detail    string // 失败原因等附加信息
}

// GlobalConfig 存储全局配置 (虽是单用户，但也存在DB里方便迁移)
type GlobalConfig struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

const (
	ConfigKeySendCookies = "send_cookies"
	ConfigKeyDefaultDir  = "default_download_dir"
)
