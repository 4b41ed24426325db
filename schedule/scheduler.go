package schedule

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/ioc/logging"
)

// Job 定时任务。容器内实现了本接口的对象会在初始化完成后
// 自动挂到调度器上
type Job interface {
	// Spec cron 表达式，如 "*/5 * * * *"（每5分钟）
	Spec() string
	// Run 任务体
	Run()
}

// Scheduler cron 调度器的容器包装。
// 实现 Destroy，容器关闭时随之优雅停止。
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger

	mu      sync.Mutex
	jobs    map[string]cron.EntryID // 任务名称到条目ID的映射
	started bool
}

// Options 调度器选项
type Options struct {
	// EnableSeconds 是否启用秒级精度（默认分钟级）
	EnableSeconds bool
	// Logger 自定义日志记录器
	Logger logging.Logger
}

// NewScheduler 创建调度器
func NewScheduler(opts ...func(*Options)) *Scheduler {
	opt := &Options{Logger: logging.NewNop()}
	for _, o := range opts {
		o(opt)
	}

	cronOpts := []cron.Option{
		cron.WithChain(cron.Recover(newCronLogger(opt.Logger))),
	}
	if opt.EnableSeconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	return &Scheduler{
		cron:   cron.New(cronOpts...),
		logger: opt.Logger,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Add 挂载定时任务
func (s *Scheduler) Add(name, spec string, run func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("schedule: job %q already registered", name)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		s.logger.Debug("scheduled job started", logging.F("job", name))
		defer s.logger.Debug("scheduled job completed", logging.F("job", name))
		run()
	})
	if err != nil {
		return fmt.Errorf("schedule: add job %q: %w", name, err)
	}

	s.jobs[name] = entryID
	s.logger.Info("scheduled job registered", logging.F("job", name), logging.F("spec", spec))
	return nil
}

// Remove 摘除定时任务
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// Start 启动调度，幂等
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true
	s.logger.Info("scheduler starting", logging.F("jobs", len(s.jobs)))
	s.cron.Start()
}

// Destroy 停止调度并等待在途任务结束
func (s *Scheduler) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

// cronLogger 把框架日志接口适配到 cron 的日志接口
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, pairFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append(pairFields(keysAndValues), logging.F("error", err.Error()))
	l.logger.Error(msg, fields...)
}

func pairFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.F(fmt.Sprintf("%v", keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
