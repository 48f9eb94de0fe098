package handler

import (
	"net/http"
	"vidzyme/app/database"
	"vidzyme/app/model"

	"github.com/gin-gonic/gin"
)

// ChannelHandler 频道配置处理器
type ChannelHandler struct{}

// NewChannelHandler 创建频道配置处理器
func NewChannelHandler() *ChannelHandler {
	return &ChannelHandler{}
}

// ChannelRequest 频道创建/更新请求
type ChannelRequest struct {
	ChannelName          string `json:"channel_name" binding:"required,max=100"`
	PreferredVoice       string `json:"preferred_voice"`
	PreferredVideoLength int    `json:"preferred_video_length"`
}

// Create 创建频道
func (h *ChannelHandler) Create(c *gin.Context) {
	var req ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	channel := model.Channel{
		ChannelName:          req.ChannelName,
		PreferredVoice:       req.PreferredVoice,
		PreferredVideoLength: req.PreferredVideoLength,
	}
	if userID, ok := c.Get("user_id"); ok {
		if id, ok := userID.(uint); ok {
			channel.UserID = id
		}
	}

	if err := database.GetDB().Create(&channel).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "创建频道失败")
		return
	}
	success(c, channel, "频道已创建")
}

// List 查询频道列表
func (h *ChannelHandler) List(c *gin.Context) {
	var channels []model.Channel
	db := database.GetDB()
	if userID, ok := c.Get("user_id"); ok {
		db = db.Where("user_id = ?", userID)
	}
	if err := db.Find(&channels).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "查询频道失败")
		return
	}
	success(c, gin.H{"channels": channels}, "success")
}

// Update 更新频道
func (h *ChannelHandler) Update(c *gin.Context) {
	var channel model.Channel
	db := database.GetDB()
	if err := db.First(&channel, c.Param("id")).Error; err != nil {
		fail(c, http.StatusNotFound, 404, "频道不存在")
		return
	}

	var req ChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	channel.ChannelName = req.ChannelName
	channel.PreferredVoice = req.PreferredVoice
	channel.PreferredVideoLength = req.PreferredVideoLength

	if err := db.Save(&channel).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "更新频道失败")
		return
	}
	success(c, channel, "频道已更新")
}

// Delete 删除频道
func (h *ChannelHandler) Delete(c *gin.Context) {
	if err := database.GetDB().Delete(&model.Channel{}, c.Param("id")).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "删除频道失败")
		return
	}
	success(c, gin.H{"id": c.Param("id")}, "频道已删除")
}
