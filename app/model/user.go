package model

import (
	"time"

	"gorm.io/gorm"
)

// User 用户模型
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	Username  string         `json:"username" gorm:"uniqueIndex;not null;size:50;comment:用户名"`
	Password  string         `json:"-" gorm:"not null;size:100;comment:密码哈希"`
	IsAdmin   bool           `json:"is_admin" gorm:"default:false;comment:是否管理员"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
