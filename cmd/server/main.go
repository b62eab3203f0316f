package main

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/seedbridge/seedbridge/internal/api"
	"github.com/seedbridge/seedbridge/internal/config"
	"github.com/seedbridge/seedbridge/internal/cookies"
	"github.com/seedbridge/seedbridge/internal/db"
	"github.com/seedbridge/seedbridge/internal/deluge"
	"github.com/seedbridge/seedbridge/internal/poller"
	"github.com/seedbridge/seedbridge/internal/settings"
)

func main() {
	// 1. Load Config
	if err := config.LoadConfig("."); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Setup Gin Mode
	gin.SetMode(config.AppConfig.Server.Mode)

	// 转换为绝对路径日志一下
	absPath, _ := filepath.Abs(config.AppConfig.Database.Path)
	log.Printf("Initializing database at: %s", absPath)

	db.InitDB(config.AppConfig.Database.Path)

	store := settings.NewStore(db.DB)
	client := deluge.NewClient(store,
		deluge.WithTimeout(config.RequestTimeout()),
		deluge.WithConnectRetry(
			config.AppConfig.Deluge.ConnectRetries,
			time.Duration(config.AppConfig.Deluge.ConnectRetryDelay)*time.Second,
		),
	)

	r := gin.Default()

	// 初始化路由
	api.InitRoutes(r, &api.Handler{
		Client:   client,
		Settings: store,
		Cookies:  cookies.NewStore(),
		DB:       db.DB,
	})

	// Start status poller
	p := poller.NewManager(client,
		time.Duration(config.AppConfig.Deluge.StatusPollInterval)*time.Second)
	p.Start()
	defer p.Stop()

	port := fmt.Sprintf("%d", config.AppConfig.Server.Port)
	log.Printf("Server starting on port %s", port)
	if err := r.Run("127.0.0.1:" + port); err != nil {
		log.Fatal(err)
	}
}
