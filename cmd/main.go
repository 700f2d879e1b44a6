package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talent-match-go/internal/api/handler"
	"talent-match-go/internal/api/router"
	"talent-match-go/internal/config"
	"talent-match-go/internal/outbox"
	"talent-match-go/internal/processor"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/tracing"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/spf13/pflag"

	appCoreLogger "talent-match-go/internal/logger" // aliased to avoid conflict with std log and hertz log

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
)

var (
	version     = "1.0.0"           //nolint:gochecknoglobals
	serviceName = "talent-match-go" //nolint:gochecknoglobals
)

// @title Talent Match API
// @version 1.0
// @description 候选人-岗位匹配与成单概率评分服务
// @BasePath /api/v1
func main() {
	initLogger()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化链路追踪
	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		Enabled:      cfg.Tracing.Enabled,
		Endpoint:     cfg.Tracing.Endpoint,
		ServiceName:  cfg.Tracing.ServiceName,
		SamplerRatio: cfg.Tracing.SamplerRatio,
	})
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			glog.Warnf("关闭链路追踪失败: %v", err)
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// 启动outbox消息中继
	relayLogger := log.New(appCoreLogger.Logger, "[MessageRelay] ", log.LstdFlags|log.Lshortfile)
	messageRelay := outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, relayLogger)
	messageRelay.Start()
	glog.Info("消息中继服务已启动")

	// 组装匹配处理器
	matcherLogger := log.New(appCoreLogger.Logger, "[MatcherMain] ", log.LstdFlags|log.Lshortfile)
	matcherComponents := &processor.Components{
		Store:     storageManager.MySQL,
		Publisher: storageManager.RabbitMQ,
	}
	if storageManager.Redis != nil {
		matcherComponents.Cache = storageManager.Redis
	}
	if storageManager.MinIO != nil {
		matcherComponents.Archiver = storageManager.MinIO
	}
	matcher, err := processor.NewMatchProcessor(matcherComponents, &processor.Settings{
		RabbitMQ:       &cfg.RabbitMQ,
		EngineDefaults: &cfg.Matching,
		Debug:          cfg.Logger.Level == "debug",
		Logger:         matcherLogger,
	})
	if err != nil {
		glog.Fatalf("初始化MatchProcessor失败: %v", err)
	}
	glog.Info("MatchProcessor初始化成功")

	matchHandler := handler.NewMatchHandler(cfg, storageManager, matcher)
	glog.Info("MatchHandler初始化成功")

	// 启动匹配事件消费者
	go func() {
		prefetch := cfg.RabbitMQ.PrefetchCount
		if workers, ok := cfg.RabbitMQ.ConsumerWorkers["match_consumer_workers"]; ok {
			prefetch = workers
		}
		glog.Infof("启动匹配消费者，预取数量: %d", prefetch)
		if err := matchHandler.StartMatchConsumer(context.Background(), prefetch); err != nil {
			glog.Fatalf("启动匹配消费者失败: %v", err)
		}
		glog.Info("所有消费者已启动")
	}()

	tracer, tracingCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracingCfg))

	router.RegisterRoutes(h, cfg, matchHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	// 先停消息中继，避免半途发布
	messageRelay.Stop()
	glog.Info("消息中继服务已停止")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

func initLogger() {
	logFilePath := "logs/app.log"
	fileWriter, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("无法打开日志文件 %s: %v", logFilePath, err)
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	multiWriter := zerolog.MultiLevelWriter(consoleWriter, fileWriter)

	level := zerolog.DebugLevel
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = "15:04:05"

	logger := zerolog.New(multiWriter).With().Timestamp().Caller().Logger()

	// 同步设置应用logger与zerolog的全局logger
	appCoreLogger.Logger = logger
	zlog.Logger = logger

	// Hertz 经适配器复用同一个zerolog实例
	hertzCompatibleLogger := hertzadapter.From(appCoreLogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
	glog.SetLevel(glog.LevelDebug)

	log.Println("Logger initialized with Zerolog, writing to console and file:", logFilePath)
}
