package model

import (
	"strconv"
	"strings"
	"time"
)

// Channel 用户频道配置
type Channel struct {
	ID                   uint      `json:"id" gorm:"primarykey"`
	UserID               uint      `json:"user_id" gorm:"index;comment:所属用户ID"`
	ChannelName          string    `json:"channel_name" gorm:"size:100;not null;comment:频道名称"`
	PreferredVoice       string    `json:"preferred_voice" gorm:"size:60;default:haitham;comment:默认音色"`
	PreferredVideoLength int       `json:"preferred_video_length" gorm:"default:60;comment:默认视频时长(秒)"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName 指定表名
func (Channel) TableName() string {
	return "channels"
}

// splitAndTrim 按分隔符拆分并去掉空白项
func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// atoiInRange 解析整数并校验范围
func atoiInRange(s string, min, max int) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}
