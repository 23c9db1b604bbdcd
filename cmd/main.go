package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inline-media-backend/internal/config"
	"inline-media-backend/internal/events"
	"inline-media-backend/internal/generator"
	"inline-media-backend/internal/handler"
	"inline-media-backend/internal/service"
	"inline-media-backend/internal/storage"
	"inline-media-backend/internal/tools"
	"inline-media-backend/internal/viewer"
	"inline-media-backend/pkg/logger"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := service.NewStorage(cfg)
	bus := events.NewBus()

	settings, err := config.NewSettingsStore(cfg.Generator.SettingsFile, cfg.Generator.SaveDebounce)
	if err != nil {
		logger.Fatalf("加载生成设置失败: %v", err)
	}

	// 初始化生成链路
	client := generator.NewClient(cfg.Provider)
	dispatcher := generator.NewDispatcher(newExecutor(cfg, client), client, newSettler(cfg), newRefiner(ctx, cfg))

	mediaService := service.NewMediaService(store, bus, settings, dispatcher, viewer.New(viewer.DefaultOptions), service.MediaOptions{
		Delays:             cfg.Delays,
		RestoreParallelism: cfg.Generator.RestoreParallelism,
	})
	mediaService.Bind()

	chatService := service.NewChatService(store, bus, cfg.Session)
	go chatService.CleanupOldSessions(ctx)
	go runBackups(ctx, store, cfg.Storage.BackupInterval)

	workflows := service.NewWorkflowCatalog(bus, client)

	toolset := tools.GetMediaTools(dispatcher, settings)
	mcpTools, err := tools.LoadMCPTools(ctx, cfg.MCP)
	if err != nil {
		logger.Warnf("MCP 工具不可用: %v", err)
	}
	toolset = append(toolset, mcpTools...)

	// 初始化处理器
	router := handler.NewRouter(cfg, handler.Handlers{
		Chat:     handler.NewChatHandler(chatService),
		Media:    handler.NewMediaHandler(mediaService),
		Settings: handler.NewSettingsHandler(settings, workflows),
		Events:   handler.NewEventsHandler(bus, 30*time.Second),
		Tools:    handler.NewToolsHandler(toolset),
	})

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// 启动服务器
	go func() {
		logger.Infof("服务器启动在端口 %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待信号优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务器正在关闭...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("服务器关闭失败: %v", err)
	}

	cancel()
	mediaService.Close()
	if err := settings.Flush(); err != nil {
		logger.Errorf("保存设置失败: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Errorf("存储关闭失败: %v", err)
	}
	logger.Info("服务器已关闭")
}

func newExecutor(cfg *config.Config, client *generator.Client) generator.CommandExecutor {
	if cfg.Generator.Executor == "host" && cfg.Host.CommandEndpoint != "" {
		logger.Infof("使用宿主命令接口: %s", cfg.Host.CommandEndpoint)
		return generator.NewHostCommandClient(cfg.Host.CommandEndpoint, cfg.Host.Timeout)
	}
	return generator.NewLocalCommandRunner(client)
}

func newSettler(cfg *config.Config) generator.Settler {
	if cfg.Provider.SettleProbe {
		return generator.NewHTTPProbe(cfg.Delays.Settle, cfg.Provider.PollTimeout)
	}
	return generator.FixedDelay(cfg.Delays.Settle)
}

func newRefiner(ctx context.Context, cfg *config.Config) generator.Refiner {
	refiner, err := generator.NewRefiner(ctx, cfg.Refiner)
	if err != nil {
		logger.Warnf("提示词优化模型初始化失败，将直接使用原始指令: %v", err)
		return nil
	}
	if refiner == nil {
		return nil
	}
	return refiner
}

func runBackups(ctx context.Context, store storage.Storage, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Backup(); err != nil {
				logger.Errorf("备份失败: %v", err)
			}
		}
	}
}
