package server

import (
	"context"
	"net/http"
	"vidzyme/app/config"
	"vidzyme/app/database"
	"vidzyme/app/handler"
	"vidzyme/app/logger"
	"vidzyme/app/middleware"
	"vidzyme/app/pipeline"
	"vidzyme/app/progress"
	"vidzyme/app/queue"
	"vidzyme/app/scheduler"
	"vidzyme/app/tts"

	"github.com/gin-gonic/gin"
)

// Server 表示 HTTP 服务器及其承载的后台组件
type Server struct {
	Config *config.Config
	Logger *logger.Logger

	gin  *gin.Engine
	http *http.Server

	queue      *queue.Manager
	tts        *tts.Factory
	ttsWatcher *tts.SettingsWatcher
	scheduler  *scheduler.Scheduler
	hub        *progress.Hub
	runner     *pipeline.Runner
}

// New 创建一个新的 Server 实例并完成组件装配
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	router := gin.Default()

	hub := progress.NewHub(log)
	queueManager := queue.NewManager(cfg.Queue, database.GetDB(), log)

	ttsFactory, err := tts.NewFactory(cfg.TTS, log)
	if err != nil {
		return nil, err
	}
	ttsWatcher, err := tts.NewSettingsWatcher(ttsFactory, cfg.TTS.ConfigFile, log)
	if err != nil {
		return nil, err
	}

	runner := pipeline.NewRunner(cfg.Pipeline, queueManager, ttsFactory, log)

	sched, err := scheduler.New(cfg.Scheduler, database.GetDB(), queueManager, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Config: cfg,
		Logger: log,
		gin:    router,
		http: &http.Server{
			Addr:    ":" + cfg.Server.Port,
			Handler: router,
		},
		queue:      queueManager,
		tts:        ttsFactory,
		ttsWatcher: ttsWatcher,
		scheduler:  sched,
		hub:        hub,
		runner:     runner,
	}

	// 设置路由
	s.setupRoutes()

	return s, nil
}

// Start 启动后台组件和 HTTP 服务
func (s *Server) Start() error {
	s.queue.Start()

	if err := s.ttsWatcher.Start(); err != nil {
		s.Logger.Errorf("启动 TTS 配置监控失败: %v", err)
	}

	if s.Config.Scheduler.Enabled {
		if err := s.scheduler.Start(); err != nil {
			s.Logger.Errorf("启动调度器失败: %v", err)
		}
	}

	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown 按依赖顺序关闭：先停触发源，再停队列，最后关数据库和 HTTP
func (s *Server) Shutdown(ctx context.Context) error {
	s.scheduler.Stop()

	if err := s.ttsWatcher.Stop(); err != nil {
		s.Logger.Errorf("停止 TTS 配置监控失败: %v", err)
	}

	s.queue.Stop()

	if err := database.Close(); err != nil {
		s.Logger.Errorf("关闭数据库连接失败: %v", err)
	}
	return s.http.Shutdown(ctx)
}

// setupRoutes 设置API路由
func (s *Server) setupRoutes() {
	authHandler := handler.NewAuthHandler(s.Config)
	generateHandler := handler.NewGenerateHandler(s.queue, s.tts, s.hub)
	scheduleHandler := handler.NewScheduleHandler(s.scheduler)
	channelHandler := handler.NewChannelHandler()
	ttsSettingsHandler := handler.NewTTSSettingsHandler(s.Config.TTS, s.tts)

	// 健康检查（不需要认证）
	s.gin.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API路由组
	api := s.gin.Group("/api")

	// 认证相关路由（不需要JWT验证）
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	// 需要JWT验证的路由
	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(s.Config))
	{
		// 用户相关
		protected.GET("/me", authHandler.Me)

		// 视频生成相关路由
		protected.POST("/generate", generateHandler.Generate)
		protected.GET("/stream", generateHandler.Stream)

		tasks := protected.Group("/tasks")
		{
			tasks.GET("/", generateHandler.ListTasks)
			tasks.GET("/:id", generateHandler.GetTask)
			tasks.DELETE("/:id", generateHandler.CancelTask)
		}

		// 队列状态
		protected.GET("/queue/status", generateHandler.QueueStatus)

		// 音色列表
		protected.GET("/voices", generateHandler.Voices)

		// 语音合成相关路由
		ttsGroup := protected.Group("/tts")
		{
			ttsGroup.GET("/providers", generateHandler.ProviderComparison)
			ttsGroup.GET("/settings", ttsSettingsHandler.Get)
			ttsGroup.PUT("/settings", ttsSettingsHandler.Update)
		}

		// 定时调度相关路由
		schedules := protected.Group("/schedules")
		{
			schedules.POST("/", scheduleHandler.Create)
			schedules.GET("/", scheduleHandler.List)
			schedules.GET("/jobs", scheduleHandler.Jobs)
			schedules.GET("/:id", scheduleHandler.Get)
			schedules.PUT("/:id", scheduleHandler.Update)
			schedules.DELETE("/:id", scheduleHandler.Delete)
			schedules.POST("/:id/toggle", scheduleHandler.Toggle)
		}

		// 频道配置相关路由
		channels := protected.Group("/channels")
		{
			channels.POST("/", channelHandler.Create)
			channels.GET("/", channelHandler.List)
			channels.PUT("/:id", channelHandler.Update)
			channels.DELETE("/:id", channelHandler.Delete)
		}
	}
}
