package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/seedbridge/seedbridge/internal/cookies"
	"github.com/seedbridge/seedbridge/internal/deluge"
	"github.com/seedbridge/seedbridge/internal/model"
	"github.com/seedbridge/seedbridge/internal/settings"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

// stubClient 可编程的核心替身
type stubClient struct {
	connectErr error
	addErr     error
	torrentID  string

	lastURL     string
	lastCookies map[string]string
	lastLabels  map[string]string
	lastOptions map[string]interface{}
}

func (s *stubClient) Connect(ctx context.Context) error { return s.connectErr }

func (s *stubClient) AddTorrent(ctx context.Context, rawURL string, cookieMap, labels map[string]string, options map[string]interface{}) (string, error) {
	s.lastURL = rawURL
	s.lastCookies = cookieMap
	s.lastLabels = labels
	s.lastOptions = options
	if s.addErr != nil {
		return "", s.addErr
	}
	return s.torrentID, nil
}

func (s *stubClient) GetPluginInfo(ctx context.Context) (*deluge.PluginInfo, error) {
	return &deluge.PluginInfo{Plugins: []string{"Label"}, Labels: []string{"movies"}}, nil
}

func (s *stubClient) GetServerConfig(ctx context.Context) (*deluge.ServerCapabilities, error) {
	return &deluge.ServerCapabilities{AllowRemote: true, DownloadLocation: "/dl"}, nil
}

func (s *stubClient) State() deluge.State { return deluge.StateConfigured }

func setupTest(t *testing.T) (*gin.Engine, *stubClient, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// 内存库只能用单连接，新连接会拿到空库
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&model.Connection{}, &model.AddLog{}, &model.GlobalConfig{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	client := &stubClient{torrentID: "torrent-1"}
	h := &Handler{
		Client:   client,
		Settings: settings.NewStore(db),
		Cookies:  cookies.NewStore(),
		DB:       db,
	}

	r := gin.New()
	InitRoutes(r, h)
	return r, client, h
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestConnectHandler(t *testing.T) {
	r, _, _ := setupTest(t)

	w := doJSON(r, "POST", "/api/connect", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "configured", resp["state"])
}

func TestConnectHandler_NotConfigured(t *testing.T) {
	r, client, _ := setupTest(t)
	client.connectErr = deluge.ErrNotConfigured

	w := doJSON(r, "POST", "/api/connect", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not_configured", resp["code"])
}

func TestAddTorrentHandler_ResolvesCookiesByDomain(t *testing.T) {
	r, client, h := setupTest(t)
	h.Cookies.Set("example.com", map[string]string{"session": "abc", "sig": "def"})

	w := doJSON(r, "POST", "/api/torrents", map[string]interface{}{
		"url":           "http://example.com/file.torrent",
		"cookie_domain": "example.com",
		"label":         "movies",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "http://example.com/file.torrent", client.lastURL)
	assert.Equal(t, map[string]string{"session": "abc", "sig": "def"}, client.lastCookies)
	assert.Equal(t, map[string]string{"Label": "movies"}, client.lastLabels)

	var resp map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "torrent-1", resp["torrent_id"])
}

func TestAddTorrentHandler_RecordsHistory(t *testing.T) {
	r, _, h := setupTest(t)

	w := doJSON(r, "POST", "/api/torrents", map[string]interface{}{
		"url": "magnet:?xt=urn:btih:abcd",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var logs []model.AddLog
	assert.NoError(t, h.DB.Find(&logs).Error)
	assert.Len(t, logs, 1)
	assert.Equal(t, "added", logs[0].Status)
	assert.Equal(t, "torrent-1", logs[0].TorrentID)
}

func TestAddTorrentHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{deluge.ErrRemoteAccessDenied, http.StatusForbidden, "remote_access_denied"},
		{deluge.ErrNoDaemonAvailable, http.StatusBadGateway, "no_daemon"},
		{deluge.ErrTimeout, http.StatusGatewayTimeout, "timeout"},
		{deluge.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{&deluge.ServerError{Message: "boom"}, http.StatusBadGateway, "server_error"},
	}

	for _, c := range cases {
		r, client, _ := setupTest(t)
		client.addErr = c.err

		w := doJSON(r, "POST", "/api/torrents", map[string]interface{}{
			"url": "magnet:?xt=urn:btih:abcd",
		})
		assert.Equal(t, c.wantStatus, w.Code)

		var resp map[string]string
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, c.wantCode, resp["code"])
	}
}

func TestAddTorrentHandler_RequiresURL(t *testing.T) {
	r, _, _ := setupTest(t)
	w := doJSON(r, "POST", "/api/torrents", map[string]interface{}{"label": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsHandlers(t *testing.T) {
	r, _, _ := setupTest(t)

	// 新建连接
	w := doJSON(r, "POST", "/api/settings/connections", map[string]string{
		"control_url": "http://nas:8112",
		"password":    "secret",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// 读取设置：密码不回传
	w = doJSON(r, "GET", "/api/settings", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")

	var resp struct {
		SendCookies bool             `json:"send_cookies"`
		Connections []connectionView `json:"connections"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.SendCookies)
	assert.Len(t, resp.Connections, 1)
	assert.Equal(t, "http://nas:8112", resp.Connections[0].ControlURL)

	// 关闭 cookie 转发
	w = doJSON(r, "PUT", "/api/settings", map[string]bool{"send_cookies": false})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, "GET", "/api/settings", nil)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.SendCookies)
}

func TestCookieHandlers(t *testing.T) {
	r, _, h := setupTest(t)

	w := doJSON(r, "PUT", "/api/cookies/example.com", map[string]string{"session": "abc"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{"session": "abc"}, h.Cookies.Resolve("http://example.com/"))

	w = doJSON(r, "DELETE", "/api/cookies/example.com", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, h.Cookies.Resolve("http://example.com/"))
}

func TestHistoryHandler(t *testing.T) {
	r, _, h := setupTest(t)
	h.DB.Create(&model.AddLog{URL: "magnet:?xt=a", Status: "added"})

	w := doJSON(r, "GET", "/api/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var logs []model.AddLog
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	assert.Len(t, logs, 1)
}

func TestPluginsHandler(t *testing.T) {
	r, _, _ := setupTest(t)

	w := doJSON(r, "GET", "/api/plugins", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var info deluge.PluginInfo
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, []string{"movies"}, info.Labels)
}

func TestServerConfigHandler(t *testing.T) {
	r, _, _ := setupTest(t)

	w := doJSON(r, "GET", "/api/server-config", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var caps deluge.ServerCapabilities
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &caps))
	assert.True(t, caps.AllowRemote)
	assert.Equal(t, "/dl", caps.DownloadLocation)
}
