package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/seedbridge/seedbridge/internal/cookies"
	"github.com/seedbridge/seedbridge/internal/deluge"
	"github.com/seedbridge/seedbridge/internal/settings"
	"gorm.io/gorm"
)

// DelugeClient 是 handler 消费的核心操作面，测试里可替换
type DelugeClient interface {
	Connect(ctx context.Context) error
	AddTorrent(ctx context.Context, rawURL string, cookies map[string]string, labels map[string]string, options map[string]interface{}) (string, error)
	GetPluginInfo(ctx context.Context) (*deluge.PluginInfo, error)
	GetServerConfig(ctx context.Context) (*deluge.ServerCapabilities, error)
	State() deluge.State
}

// Handler 聚合 handler 依赖
type Handler struct {
	Client   DelugeClient
	Settings *settings.Store
	Cookies  *cookies.Store
	DB       *gorm.DB
}

func InitRoutes(r *gin.Engine, h *Handler) {
	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/connect", h.ConnectHandler)
		apiGroup.POST("/torrents", h.AddTorrentHandler)
		apiGroup.GET("/plugins", h.PluginsHandler)
		apiGroup.GET("/server-config", h.ServerConfigHandler)

		apiGroup.GET("/settings", h.GetSettingsHandler)
		apiGroup.PUT("/settings", h.UpdateSettingsHandler)
		apiGroup.POST("/settings/connections", h.CreateConnectionHandler)
		apiGroup.DELETE("/settings/connections/:id", h.DeleteConnectionHandler)
		apiGroup.POST("/settings/connections/:id/activate", h.ActivateConnectionHandler)

		apiGroup.PUT("/cookies/:domain", h.SyncCookiesHandler)
		apiGroup.DELETE("/cookies/:domain", h.DeleteCookiesHandler)

		apiGroup.GET("/history", h.HistoryHandler)
		apiGroup.GET("/events", SSEHandler)
	}
}
