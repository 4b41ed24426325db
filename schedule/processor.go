package schedule

// Processor 定时任务探测器：对象初始化完成后，实现了 Job 的
// 自动挂到调度器。挂载失败视为初始化失败。
type Processor struct {
	scheduler *Scheduler
}

// NewProcessor 创建定时任务探测器
func NewProcessor(scheduler *Scheduler) *Processor {
	return &Processor{scheduler: scheduler}
}

func (p *Processor) Name() string { return "schedule.jobRegistrar" }

func (p *Processor) BeforeInit(name string, obj any) (any, error) {
	return nil, nil
}

func (p *Processor) AfterInit(name string, obj any) (any, error) {
	job, ok := obj.(Job)
	if !ok {
		return nil, nil
	}
	if err := p.scheduler.Add(name, job.Spec(), job.Run); err != nil {
		return nil, err
	}
	return nil, nil
}
