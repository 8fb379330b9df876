package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/feichai0017/ipo-quickread/config"
	"github.com/feichai0017/ipo-quickread/internal/service/filing"
	"github.com/feichai0017/ipo-quickread/pkg/logger"
	"github.com/feichai0017/ipo-quickread/pkg/queue"
	"github.com/feichai0017/ipo-quickread/pkg/storage"
	"github.com/feichai0017/ipo-quickread/pkg/worker"
)

func main() {
	appCfg := config.GetAppConfig()
	redisCfg := config.GetRedisConfig()

	// 初始化日志
	log, err := logger.NewLogger(
		logger.WithLevel(appCfg.LogLevel),
		logger.WithEncoding(appCfg.LogEncoding),
		logger.WithOutputPaths(appCfg.LogOutputs()),
		logger.WithInitialFields(map[string]interface{}{"service": "ipo-quickread-worker"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// 创建目录服务
	filingService, err := filing.GetService(initCtx, log)
	if err != nil {
		log.Error("Failed to create filing service", logger.Error(err))
		os.Exit(1)
	}
	defer filingService.Close()

	objects, err := storage.NewStorage(initCtx, storage.StorageType(appCfg.StorageType), log)
	if err != nil && !errors.Is(err, storage.ErrDisabled) {
		log.Error("Failed to init object storage", logger.Error(err))
		os.Exit(1)
	}
	if objects == nil {
		log.Warn("Object storage disabled, quickread:attach tasks will be rejected")
	}

	// 创建 worker 配置
	workerCfg := &worker.Config{
		RedisAddr:     redisCfg.Addr,
		RedisPassword: redisCfg.Password,
		RedisDB:       redisCfg.DB,
		Concurrency:   redisCfg.Concurrency,
		Queues:        queue.Queues,
	}

	// 创建 worker
	resultWorker, err := worker.NewResultWorker(workerCfg, filingService, objects, log)
	if err != nil {
		log.Error("Failed to create result worker", logger.Error(err))
		os.Exit(1)
	}

	// 创建上下文和取消函数
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动 worker
	if err := resultWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started", logger.String("redis", redisCfg.Addr), logger.Int("concurrency", redisCfg.Concurrency))

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	// 优雅关闭
	log.Info("Shutting down worker...")
	resultWorker.Stop()
	log.Info("Worker stopped")
}
