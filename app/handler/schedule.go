package handler

import (
	"net/http"
	"time"
	"vidzyme/app/database"
	"vidzyme/app/model"
	"vidzyme/app/scheduler"

	"github.com/gin-gonic/gin"
)

// ScheduleHandler 定时调度处理器
type ScheduleHandler struct {
	scheduler *scheduler.Scheduler
}

// NewScheduleHandler 创建定时调度处理器
func NewScheduleHandler(s *scheduler.Scheduler) *ScheduleHandler {
	return &ScheduleHandler{scheduler: s}
}

// ScheduleRequest 调度定义的创建/更新请求
type ScheduleRequest struct {
	ChannelID      uint       `json:"channel_id"`
	PromptTemplate string     `json:"prompt_template" binding:"required"`
	TitleTemplate  string     `json:"title_template"`
	ScheduleType   string     `json:"schedule_type" binding:"required,oneof=daily weekly monthly custom"`
	ScheduleTime   string     `json:"schedule_time"`
	ScheduleDays   string     `json:"schedule_days"`
	NextExecution  *time.Time `json:"next_execution"`
	MaxExecutions  int        `json:"max_executions"`
}

// Create 创建调度定义并立即挂载
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	sv := model.ScheduledVideo{
		ChannelID:      req.ChannelID,
		PromptTemplate: req.PromptTemplate,
		TitleTemplate:  req.TitleTemplate,
		ScheduleType:   req.ScheduleType,
		ScheduleTime:   req.ScheduleTime,
		ScheduleDays:   req.ScheduleDays,
		NextExecution:  req.NextExecution,
		MaxExecutions:  req.MaxExecutions,
		IsActive:       true,
	}
	if userID, ok := c.Get("user_id"); ok {
		if id, ok := userID.(uint); ok {
			sv.UserID = id
		}
	}

	if err := database.GetDB().Create(&sv).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "创建调度定义失败")
		return
	}

	if err := h.scheduler.Schedule(&sv); err != nil {
		fail(c, http.StatusBadRequest, 400, "挂载调度失败: "+err.Error())
		return
	}

	success(c, sv, "调度已创建")
}

// List 查询调度定义列表
func (h *ScheduleHandler) List(c *gin.Context) {
	var definitions []model.ScheduledVideo
	if err := database.GetDB().Preload("Channel").
		Order("created_at DESC").Find(&definitions).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "查询调度定义失败")
		return
	}
	success(c, gin.H{"schedules": definitions}, "success")
}

// Get 查询单个调度定义
func (h *ScheduleHandler) Get(c *gin.Context) {
	var sv model.ScheduledVideo
	if err := database.GetDB().Preload("Channel").First(&sv, c.Param("id")).Error; err != nil {
		fail(c, http.StatusNotFound, 404, "调度定义不存在")
		return
	}
	success(c, sv, "success")
}

// Update 更新调度定义并替换触发器
func (h *ScheduleHandler) Update(c *gin.Context) {
	var sv model.ScheduledVideo
	db := database.GetDB()
	if err := db.First(&sv, c.Param("id")).Error; err != nil {
		fail(c, http.StatusNotFound, 404, "调度定义不存在")
		return
	}

	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 400, "请求参数错误: "+err.Error())
		return
	}

	sv.ChannelID = req.ChannelID
	sv.PromptTemplate = req.PromptTemplate
	sv.TitleTemplate = req.TitleTemplate
	sv.ScheduleType = req.ScheduleType
	sv.ScheduleTime = req.ScheduleTime
	sv.ScheduleDays = req.ScheduleDays
	sv.NextExecution = req.NextExecution
	sv.MaxExecutions = req.MaxExecutions

	if err := db.Save(&sv).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "更新调度定义失败")
		return
	}

	if err := h.scheduler.Schedule(&sv); err != nil {
		fail(c, http.StatusBadRequest, 400, "挂载调度失败: "+err.Error())
		return
	}

	success(c, sv, "调度已更新")
}

// Delete 删除调度定义并摘除触发器
func (h *ScheduleHandler) Delete(c *gin.Context) {
	var sv model.ScheduledVideo
	db := database.GetDB()
	if err := db.First(&sv, c.Param("id")).Error; err != nil {
		fail(c, http.StatusNotFound, 404, "调度定义不存在")
		return
	}

	h.scheduler.Unschedule(sv.ID)

	if err := db.Delete(&sv).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "删除调度定义失败")
		return
	}
	success(c, gin.H{"id": sv.ID}, "调度已删除")
}

// Toggle 启用或停用调度定义
func (h *ScheduleHandler) Toggle(c *gin.Context) {
	var sv model.ScheduledVideo
	db := database.GetDB()
	if err := db.First(&sv, c.Param("id")).Error; err != nil {
		fail(c, http.StatusNotFound, 404, "调度定义不存在")
		return
	}

	sv.IsActive = !sv.IsActive
	if sv.IsActive && sv.ReachedLimit() {
		fail(c, http.StatusConflict, 409, "调度已达到最大执行次数，无法启用")
		return
	}

	if err := db.Save(&sv).Error; err != nil {
		fail(c, http.StatusInternalServerError, 500, "更新调度定义失败")
		return
	}

	if err := h.scheduler.Schedule(&sv); err != nil {
		fail(c, http.StatusBadRequest, 400, "挂载调度失败: "+err.Error())
		return
	}

	success(c, sv, "调度状态已切换")
}

// Jobs 列出当前挂载的触发器
func (h *ScheduleHandler) Jobs(c *gin.Context) {
	success(c, gin.H{"jobs": h.scheduler.Jobs()}, "success")
}
