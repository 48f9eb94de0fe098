package database

import (
	"vidzyme/app/model"
)

// AutoMigrate 自动迁移所有表结构
func AutoMigrate() error {
	return DB.AutoMigrate(
		&model.User{},
		&model.Channel{},
		&model.VideoTask{},
		&model.ScheduledVideo{},
	)
}
