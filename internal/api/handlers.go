package api

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/seedbridge/seedbridge/internal/deluge"
	"github.com/seedbridge/seedbridge/internal/event"
	"github.com/seedbridge/seedbridge/internal/model"
)

// errorResponse 把核心错误分类翻译成 HTTP 状态码和稳定的 code 字符串，
// 扩展 UI 靠 code 决定提示文案
func errorResponse(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	var se *deluge.ServerError
	var te *deluge.TransportError

	switch {
	case errors.Is(err, deluge.ErrNotConfigured):
		status, code = http.StatusUnprocessableEntity, "not_configured"
	case errors.Is(err, deluge.ErrInvalidCredentials):
		status, code = http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, deluge.ErrAuthExpired):
		status, code = http.StatusUnauthorized, "auth_expired"
	case errors.Is(err, deluge.ErrNoDaemonAvailable):
		status, code = http.StatusBadGateway, "no_daemon"
	case errors.Is(err, deluge.ErrRemoteDisabled):
		status, code = http.StatusForbidden, "remote_disabled"
	case errors.Is(err, deluge.ErrRemoteAccessDenied):
		status, code = http.StatusForbidden, "remote_access_denied"
	case errors.Is(err, deluge.ErrTimeout):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &se):
		status, code = http.StatusBadGateway, "server_error"
	case errors.As(err, &te):
		status, code = http.StatusBadGateway, "transport_error"
	}

	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

// === Connection ===

func (h *Handler) ConnectHandler(c *gin.Context) {
	if err := h.Client.Connect(c.Request.Context()); err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": h.Client.State().String()})
}

// === Torrents ===

type addTorrentRequest struct {
	URL          string                 `json:"url" binding:"required"`
	CookieDomain string                 `json:"cookie_domain"`
	Label        string                 `json:"label"`
	LabelPlugin  string                 `json:"label_plugin"`
	Options      map[string]interface{} `json:"options"`
}

func (h *Handler) AddTorrentHandler(c *gin.Context) {
	var req addTorrentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	// cookie 按本次调用解析：优先用调用方给的来源域，否则用目标地址本身
	cookieSource := req.URL
	if req.CookieDomain != "" {
		cookieSource = "http://" + req.CookieDomain + "/"
	}
	siteCookies := h.Cookies.Resolve(cookieSource)

	labels := map[string]string{}
	if req.Label != "" {
		plugin := req.LabelPlugin
		if plugin == "" {
			plugin = "Label"
		}
		labels[plugin] = req.Label
	}

	torrentID, err := h.Client.AddTorrent(c.Request.Context(), req.URL, siteCookies, labels, req.Options)

	logEntry := model.AddLog{
		URL:    req.URL,
		Label:  req.Label,
		Domain: hostOf(req.URL, req.CookieDomain),
	}
	if err != nil {
		logEntry.Status = "failed"
		logEntry.Detail = err.Error()
		if dberr := h.DB.Create(&logEntry).Error; dberr != nil {
			log.Printf("api: failed to record add log: %v", dberr)
		}
		errorResponse(c, err)
		return
	}

	logEntry.Status = "added"
	logEntry.TorrentID = torrentID
	if dberr := h.DB.Create(&logEntry).Error; dberr != nil {
		log.Printf("api: failed to record add log: %v", dberr)
	}

	event.GlobalBus.Publish(event.EventTorrentAdded, gin.H{
		"url":        req.URL,
		"torrent_id": torrentID,
	})

	c.JSON(http.StatusOK, gin.H{"torrent_id": torrentID})
}

func hostOf(rawURL, fallback string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return fallback
}

// === Capabilities ===

func (h *Handler) PluginsHandler(c *gin.Context) {
	info, err := h.Client.GetPluginInfo(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) ServerConfigHandler(c *gin.Context) {
	caps, err := h.Client.GetServerConfig(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, caps)
}

// === Settings ===

type connectionView struct {
	ID         uint   `json:"id"`
	ControlURL string `json:"control_url"`
	Position   int    `json:"position"`
}

func (h *Handler) GetSettingsHandler(c *gin.Context) {
	rows, err := h.Settings.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]connectionView, 0, len(rows))
	for _, r := range rows {
		// 密码不回传给 UI
		views = append(views, connectionView{ID: r.ID, ControlURL: r.ControlURL, Position: r.Position})
	}
	c.JSON(http.StatusOK, gin.H{
		"send_cookies": h.Settings.SendCookies(),
		"connections":  views,
	})
}

type updateSettingsRequest struct {
	SendCookies *bool `json:"send_cookies"`
}

func (h *Handler) UpdateSettingsHandler(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.SendCookies != nil {
		if err := h.Settings.SetSendCookies(*req.SendCookies); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createConnectionRequest struct {
	ControlURL string `json:"control_url" binding:"required"`
	Password   string `json:"password"`
}

func (h *Handler) CreateConnectionHandler(c *gin.Context) {
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	conn, err := h.Settings.AddConnection(req.ControlURL, req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, connectionView{ID: conn.ID, ControlURL: conn.ControlURL, Position: conn.Position})
}

func (h *Handler) DeleteConnectionHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.Settings.RemoveConnection(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ActivateConnectionHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.Settings.ActivateConnection(uint(id)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// === Cookies ===

func (h *Handler) SyncCookiesHandler(c *gin.Context) {
	var values map[string]string
	if err := c.ShouldBindJSON(&values); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	h.Cookies.Set(c.Param("domain"), values)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) DeleteCookiesHandler(c *gin.Context) {
	h.Cookies.Delete(c.Param("domain"))
	c.Status(http.StatusNoContent)
}

// === History ===

func (h *Handler) HistoryHandler(c *gin.Context) {
	var logs []model.AddLog
	if err := h.DB.Order("created_at desc").Limit(50).Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}
