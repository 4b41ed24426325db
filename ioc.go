// Package ioc 对象工厂的组装门面：把定义注册表、创建工厂、
// 配置求值、自动代理与定时调度拼装成一个开箱即用的容器。
package ioc

import (
	"context"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/definition"
	"github.com/gocrud/ioc/factory"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/schedule"
)

// SchedulerName 调度器在容器内的注册名
const SchedulerName = "schedule.scheduler"

// Container 组装完成的容器
type Container struct {
	registry  *definition.Registry
	factory   *factory.Factory
	logger    logging.Logger
	scheduler *schedule.Scheduler
}

type containerOptions struct {
	logger        logging.Logger
	configuration config.Configuration
	factoryOpts   []factory.Option
	scheduling    bool
	schedulerOpts []func(*schedule.Options)
	autoProxy     bool
	proxyVariant  aop.CreatorVariant
	proxySettings aop.CreatorSettings
}

// Option 容器组装选项
type Option func(*containerOptions)

// WithLogger 指定容器日志记录器
func WithLogger(logger logging.Logger) Option {
	return func(o *containerOptions) { o.logger = logger }
}

// WithConfiguration 接入配置视图，属性表达式 "${key}" 由其求值
func WithConfiguration(cfg config.Configuration) Option {
	return func(o *containerOptions) { o.configuration = cfg }
}

// AllowRawInjection 依赖环中早期引用被后续包装时，
// 容忍依赖方持有原始对象
func AllowRawInjection() Option {
	return func(o *containerOptions) {
		o.factoryOpts = append(o.factoryOpts, factory.AllowRawInjection())
	}
}

// DisallowCircularReferences 关闭依赖环自动化解，
// 环一律报创建失败
func DisallowCircularReferences() Option {
	return func(o *containerOptions) {
		o.factoryOpts = append(o.factoryOpts, factory.DisallowCircularReferences())
	}
}

// WithScheduling 启用定时任务：实现 schedule.Job 的对象
// 初始化后自动挂到调度器
func WithScheduling(opts ...func(*schedule.Options)) Option {
	return func(o *containerOptions) {
		o.scheduling = true
		o.schedulerOpts = opts
	}
}

// WithAutoProxy 启用自动代理参与者
func WithAutoProxy(variant aop.CreatorVariant, settings aop.CreatorSettings) Option {
	return func(o *containerOptions) {
		o.autoProxy = true
		o.proxyVariant = variant
		o.proxySettings = settings
	}
}

// New 组装容器
func New(opts ...Option) (*Container, error) {
	opt := &containerOptions{logger: logging.NewLogger()}
	for _, o := range opts {
		o(opt)
	}

	registry := definition.NewRegistry()

	factoryOpts := append([]factory.Option{factory.WithLogger(opt.logger)}, opt.factoryOpts...)
	if opt.configuration != nil {
		factoryOpts = append(factoryOpts, factory.WithValueResolver(config.NewResolver(opt.configuration)))
	}
	f := factory.New(registry, factoryOpts...)

	c := &Container{
		registry: registry,
		factory:  f,
		logger:   opt.logger,
	}

	if opt.scheduling {
		schedOpts := append([]func(*schedule.Options){func(s *schedule.Options) {
			s.Logger = opt.logger
		}}, opt.schedulerOpts...)
		c.scheduler = schedule.NewScheduler(schedOpts...)
		if err := f.RegisterSingleton(SchedulerName, c.scheduler); err != nil {
			return nil, err
		}
		f.AddPostProcessor(schedule.NewProcessor(c.scheduler))
	}

	if opt.autoProxy {
		if _, err := aop.RegisterCreatorIfNecessary(f, opt.proxyVariant, opt.proxySettings); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Registry 底层定义注册表
func (c *Container) Registry() *definition.Registry {
	return c.registry
}

// Factory 底层创建工厂
func (c *Container) Factory() *factory.Factory {
	return c.factory
}

// Register 注册对象定义
func (c *Container) Register(name string, def *definition.ObjectDefinition) error {
	return c.registry.Register(name, def)
}

// RegisterAlias 注册别名
func (c *Container) RegisterAlias(alias, name string) error {
	return c.registry.RegisterAlias(alias, name)
}

// RegisterSingleton 登记外部构造好的单例
func (c *Container) RegisterSingleton(name string, instance any) error {
	return c.factory.RegisterSingleton(name, instance)
}

// AddPostProcessor 注册后置处理器
func (c *Container) AddPostProcessor(p factory.PostProcessor) {
	c.factory.AddPostProcessor(p)
}

// Build 预实例化全部单例并启动调度器
func (c *Container) Build() error {
	if err := c.factory.PreInstantiateSingletons(); err != nil {
		return err
	}
	if c.scheduler != nil {
		c.scheduler.Start()
	}
	return nil
}

// Resolve 按名称解析对象
func (c *Container) Resolve(name string) (any, error) {
	return c.factory.Resolve(name)
}

// Publish 向全部事件订阅者广播事件
func (c *Container) Publish(event any) {
	c.factory.Publish(event)
}

// Shutdown 逆序销毁单例并停止调度器
func (c *Container) Shutdown(ctx context.Context) error {
	if c.scheduler != nil {
		if err := c.scheduler.Destroy(); err != nil {
			c.logger.Error("scheduler shutdown failed", logging.F("error", err.Error()))
		}
	}
	return c.factory.Shutdown(ctx)
}
