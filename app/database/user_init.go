package database

import (
	"vidzyme/app/config"
	"vidzyme/app/logger"
	"vidzyme/app/model"
	"vidzyme/app/utils"

	"gorm.io/gorm"
)

// InitAdminUser 初始化管理员账户（不存在时创建）
func InitAdminUser(cfg *config.Config, log *logger.Logger) error {
	username := cfg.Server.Username
	password := cfg.Server.Password
	if username == "" {
		username = "admin"
	}
	if password == "" {
		password = "admin"
		log.Warn("未配置管理员密码，使用默认密码，请尽快修改")
	}

	var user model.User
	err := DB.Where("username = ?", username).First(&user).Error
	if err == nil {
		return nil // 已存在
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	hashed, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	user = model.User{
		Username: username,
		Password: hashed,
		IsAdmin:  true,
	}
	if err := DB.Create(&user).Error; err != nil {
		return err
	}

	log.Infof("管理员账户已创建: %s", username)
	return nil
}
