package worker

import (
	"context"
	"sync"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/ipo-quickread/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	Queues        map[string]int
}

type BaseWorker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	logger   logger.Logger
	stopOnce sync.Once
	stopChan chan struct{}
}

// Stop drains in-flight tasks and shuts the server down. Safe to call twice.
func (w *BaseWorker) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.server.Shutdown()
	})
	return nil
}
