package handler

import (
	"net/http"
	"vidzyme/app/config"
	"vidzyme/app/tts"

	"github.com/gin-gonic/gin"
)

// TTSSettingsHandler 语音合成策略配置处理器
type TTSSettingsHandler struct {
	cfg     config.TTSConfig
	factory *tts.Factory
}

// NewTTSSettingsHandler 创建语音合成配置处理器
func NewTTSSettingsHandler(cfg config.TTSConfig, factory *tts.Factory) *TTSSettingsHandler {
	return &TTSSettingsHandler{
		cfg:     cfg,
		factory: factory,
	}
}

// Get 查询当前策略配置
func (h *TTSSettingsHandler) Get(c *gin.Context) {
	success(c, h.factory.Settings(), "success")
}

// Update 更新策略配置
// 配置写入文件后由文件监控触发工厂重载，这里同步触发一次保证立即生效
func (h *TTSSettingsHandler) Update(c *gin.Context) {
	var settings tts.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		fail(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	if err := settings.Save(h.cfg.ConfigFile); err != nil {
		fail(c, http.StatusInternalServerError, 500, "保存配置失败: "+err.Error())
		return
	}

	if err := h.factory.Reload(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, 500, "重载配置失败: "+err.Error())
		return
	}

	success(c, h.factory.Settings(), "配置已更新")
}
