package settings

import (
	"fmt"

	"github.com/seedbridge/seedbridge/internal/deluge"
	"github.com/seedbridge/seedbridge/internal/model"
	"gorm.io/gorm"
)

// Store 是 deluge.Settings 的 db 实现，连接列表和 cookie 策略都落在 sqlite
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Connections 按 Position 升序返回全部连接配置
func (s *Store) Connections() ([]deluge.ConnectionConfig, error) {
	var rows []model.Connection
	if err := s.DB.Order("position asc, id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}
	conns := make([]deluge.ConnectionConfig, 0, len(rows))
	for _, r := range rows {
		conns = append(conns, deluge.ConnectionConfig{
			ControlURL: r.ControlURL,
			Password:   r.Password,
		})
	}
	return conns, nil
}

// SendCookies 站点 cookie 转发策略，缺省放行
func (s *Store) SendCookies() bool {
	var cfg model.GlobalConfig
	err := s.DB.Where("key = ?", model.ConfigKeySendCookies).First(&cfg).Error
	if err != nil {
		return true
	}
	return cfg.Value != "false"
}

// SetSendCookies 持久化 cookie 转发开关
func (s *Store) SetSendCookies(enabled bool) error {
	value := "true"
	if !enabled {
		value = "false"
	}

	// Manual Upsert
	var count int64
	if err := s.DB.Model(&model.GlobalConfig{}).
		Where("key = ?", model.ConfigKeySendCookies).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return s.DB.Create(&model.GlobalConfig{Key: model.ConfigKeySendCookies, Value: value}).Error
	}
	return s.DB.Model(&model.GlobalConfig{}).
		Where("key = ?", model.ConfigKeySendCookies).Update("value", value).Error
}

// AddConnection 追加一条连接配置，排在现有配置之后
func (s *Store) AddConnection(controlURL, password string) (*model.Connection, error) {
	var maxPos int
	row := s.DB.Model(&model.Connection{}).Select("COALESCE(MAX(position), -1)").Row()
	if err := row.Scan(&maxPos); err != nil {
		return nil, err
	}

	conn := model.Connection{ControlURL: controlURL, Password: password, Position: maxPos + 1}
	if err := s.DB.Create(&conn).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

// RemoveConnection 删除一条连接配置
func (s *Store) RemoveConnection(id uint) error {
	return s.DB.Delete(&model.Connection{}, id).Error
}

// ActivateConnection 把指定配置移到列表首位
func (s *Store) ActivateConnection(id uint) error {
	var target model.Connection
	if err := s.DB.First(&target, id).Error; err != nil {
		return err
	}

	var rows []model.Connection
	if err := s.DB.Order("position asc, id asc").Find(&rows).Error; err != nil {
		return err
	}

	pos := 1
	for i := range rows {
		if rows[i].ID == target.ID {
			rows[i].Position = 0
		} else {
			rows[i].Position = pos
			pos++
		}
		if err := s.DB.Save(&rows[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// List 返回原始连接行 (供 options 页渲染)
func (s *Store) List() ([]model.Connection, error) {
	var rows []model.Connection
	err := s.DB.Order("position asc, id asc").Find(&rows).Error
	return rows, err
}
