package aop

import (
	"reflect"
	"sync"

	"github.com/gocrud/ioc/factory"
)

// CreatorSettings 自动代理参与者的代理构建设置
type CreatorSettings struct {
	// ProxyTargetClass 强制类代理
	ProxyTargetClass bool
	// Optimize 性能优先，同样强制类代理
	Optimize bool
}

// creatorBase 自动代理后置处理器的公共实现。
// 三个变体只在通知来源的筛选规则上有差别。
type creatorBase struct {
	factory  *factory.Factory
	settings CreatorSettings
	variant  CreatorVariant

	mu sync.Mutex
	// earlyProxied 早期引用阶段已经代理过的名称，
	// after-initialization 不再二次包装
	earlyProxied map[string]bool
}

func newCreatorBase(f *factory.Factory, settings CreatorSettings, variant CreatorVariant) creatorBase {
	return creatorBase{
		factory:      f,
		settings:     settings,
		variant:      variant,
		earlyProxied: make(map[string]bool),
	}
}

// Name 统一返回固定的公认名称：容器内同时最多只有一个自动代理参与者
func (c *creatorBase) Name() string { return CreatorName }

// Order 运行在用户处理器之后（事件订阅者探测器之前）
func (c *creatorBase) Order() int { return 1<<31 - 2 }

func (c *creatorBase) BeforeInit(name string, obj any) (any, error) {
	return nil, nil
}

func (c *creatorBase) AfterInit(name string, obj any) (any, error) {
	c.mu.Lock()
	early := c.earlyProxied[name]
	delete(c.earlyProxied, name)
	c.mu.Unlock()
	if early {
		// 早期引用阶段已经包装过
		return nil, nil
	}
	return c.wrapIfNecessary(obj)
}

// EarlyReference 对象陷入依赖环时在此提前包装，
// 保证依赖方捕获的与最终暴露的是同一个代理
func (c *creatorBase) EarlyReference(name string, obj any) any {
	wrapped, err := c.wrapIfNecessary(obj)
	if err != nil || wrapped == nil {
		return nil
	}
	c.mu.Lock()
	c.earlyProxied[name] = true
	c.mu.Unlock()
	return wrapped
}

// wrapIfNecessary 有适用通知时构建代理，否则保持原对象（返回 nil）
func (c *creatorBase) wrapIfNecessary(obj any) (any, error) {
	if isAopInfrastructure(obj) {
		return nil, nil
	}

	typ := reflect.TypeOf(obj)
	advisors := c.eligibleAdvisors(typ)
	if len(advisors) == 0 {
		return nil, nil
	}
	sortAdvisors(advisors)

	proxy, err := CreateProxy(&Config{
		Target:           obj,
		Interfaces:       interfacesOf(advisors),
		ProxyTargetClass: c.settings.ProxyTargetClass,
		Optimize:         c.settings.Optimize,
		Interceptors:     chainOf(advisors, typ),
	})
	if err != nil {
		return nil, err
	}
	return proxy, nil
}

// eligibleAdvisors 按变体规则收集适用于目标类型的通知
func (c *creatorBase) eligibleAdvisors(typ reflect.Type) []*Advisor {
	var collected []*Advisor

	advisorType := reflect.TypeOf((*Advisor)(nil))
	for _, name := range c.factory.NamesForType(advisorType) {
		obj, err := c.factory.Resolve(name)
		if err != nil {
			continue
		}
		adv, ok := obj.(*Advisor)
		if !ok {
			continue
		}
		if c.variant == VariantInfrastructure && !adv.Infrastructure {
			continue
		}
		collected = append(collected, adv)
	}

	// Aspect 匹配级额外采集声明式切面贡献的通知
	if c.variant == VariantAspectMatching {
		aspectType := reflect.TypeOf((*Aspect)(nil)).Elem()
		for _, name := range c.factory.NamesForType(aspectType) {
			obj, err := c.factory.Resolve(name)
			if err != nil {
				continue
			}
			if aspect, ok := obj.(Aspect); ok {
				collected = append(collected, aspect.Advisors()...)
			}
		}
	}

	var eligible []*Advisor
	for _, adv := range collected {
		if adv.appliesTo(typ) {
			eligible = append(eligible, adv)
		}
	}
	return eligible
}

// isAopInfrastructure 通知、切面、拦截器与后置处理器自身不参与自动代理
func isAopInfrastructure(obj any) bool {
	switch obj.(type) {
	case *Advisor, Aspect, Interceptor, factory.PostProcessor:
		return true
	}
	return false
}

// InfrastructureCreator 仅应用基础设施通知的自动代理参与者
type InfrastructureCreator struct {
	creatorBase
}

// AdvisorMatchingCreator 切面风格匹配：应用容器内全部通知
type AdvisorMatchingCreator struct {
	creatorBase
}

// AspectMatchingCreator 最高能力级：
// 额外发现实现 Aspect 接口的对象并采集其通知
type AspectMatchingCreator struct {
	creatorBase
}
