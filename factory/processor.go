package factory

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/gocrud/ioc/definition"
)

// PostProcessor 后置处理器基础接口。
// 处理器按能力实现下面的子接口（一个或多个），注册时做一次能力检测，
// 之后的分发不再依赖运行期类型判断。
type PostProcessor interface {
	// Name 处理器名称，用于日志与动态发现时的去重
	Name() string
}

// InstantiationHook 围绕实例化本身的钩子
type InstantiationHook interface {
	PostProcessor

	// BeforeInstantiation 可以返回一个替身对象完全取代常规实例化。
	// 返回非 nil 时编排器跳过实例化、属性填充与常规初始化，
	// 只对替身执行一轮 after-initialization。
	BeforeInstantiation(name string, typ reflect.Type) (any, error)

	// AfterInstantiation 返回 false 则否决后续属性填充，
	// 供自行填充字段的注入风格使用
	AfterInstantiation(name string, obj any) (bool, error)
}

// PropertyHook 重写待应用属性值的钩子
type PropertyHook interface {
	PostProcessor

	// Properties 可整体重写待应用的属性集。
	// populate 返回 false 表示"没有值"，直接跳过属性填充。
	Properties(name string, obj any, props []definition.PropertyValue) (rewritten []definition.PropertyValue, populate bool, err error)
}

// LifecycleHook 初始化前后的变换钩子。
// 约定：返回 nil 表示"保持原引用不变"，而不是把实例清空。
type LifecycleHook interface {
	PostProcessor

	BeforeInit(name string, obj any) (any, error)
	AfterInit(name string, obj any) (any, error)
}

// EarlyReferenceHook 早期引用钩子。
// 对象陷入依赖环时，依赖方拿到的引用先经过这里（通常在此做代理包装）。
type EarlyReferenceHook interface {
	PostProcessor

	EarlyReference(name string, obj any) any
}

// ConstructorHook 为实例化策略提供候选构造函数
type ConstructorHook interface {
	PostProcessor

	// CandidateConstructors 返回候选构造函数（func 值），无则返回 nil
	CandidateConstructors(name string, typ reflect.Type) []any
}

// Prioritized 优先排序组，整体先于 Ordered 与未排序的处理器执行
type Prioritized interface {
	Priority() int
}

// Ordered 显式数字排序组，数值小者先执行
type Ordered interface {
	Order() int
}

// processorRegistration 注册时计算一次的能力与排序键
type processorRegistration struct {
	processor PostProcessor

	// sortClass: 0 = Prioritized, 1 = Ordered, 2 = 未排序
	sortClass int
	rank      int
	seq       int
	// pinLast 固定排在 after-initialization 钩子的最后
	// （事件订阅者探测器要求看到所有其它处理器的最终产物）
	pinLast bool

	inst  InstantiationHook
	prop  PropertyHook
	life  LifecycleHook
	early EarlyReferenceHook
	ctor  ConstructorHook
}

// pipeline 后置处理器管线。
// 三级排序（Prioritized < Ordered < 未排序，组内稳定）在注册时排好，
// 五个扩展点共用同一份顺序。
type pipeline struct {
	mu   sync.RWMutex
	regs []*processorRegistration
	next int
	byID map[string]bool
}

func newPipeline() *pipeline {
	return &pipeline{byID: make(map[string]bool)}
}

// add 注册处理器。处理器必须实现至少一个能力子接口，
// 否则视为编程错误直接 panic。
func (p *pipeline) add(proc PostProcessor) {
	p.addPinned(proc, false)
}

func (p *pipeline) addPinned(proc PostProcessor, last bool) {
	reg := &processorRegistration{processor: proc, sortClass: 2, pinLast: last}

	if h, ok := proc.(InstantiationHook); ok {
		reg.inst = h
	}
	if h, ok := proc.(PropertyHook); ok {
		reg.prop = h
	}
	if h, ok := proc.(LifecycleHook); ok {
		reg.life = h
	}
	if h, ok := proc.(EarlyReferenceHook); ok {
		reg.early = h
	}
	if h, ok := proc.(ConstructorHook); ok {
		reg.ctor = h
	}
	if reg.inst == nil && reg.prop == nil && reg.life == nil && reg.early == nil && reg.ctor == nil {
		panic(fmt.Sprintf("factory: 处理器 '%s' 未实现任何能力接口 "+
			"(InstantiationHook, PropertyHook, LifecycleHook, EarlyReferenceHook, ConstructorHook)", proc.Name()))
	}

	if o, ok := proc.(Prioritized); ok {
		reg.sortClass = 0
		reg.rank = o.Priority()
	} else if o, ok := proc.(Ordered); ok {
		reg.sortClass = 1
		reg.rank = o.Order()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	reg.seq = p.next
	p.next++
	p.regs = append(p.regs, reg)
	p.byID[proc.Name()] = true

	sort.SliceStable(p.regs, func(i, j int) bool {
		a, b := p.regs[i], p.regs[j]
		if a.pinLast != b.pinLast {
			return !a.pinLast
		}
		if a.sortClass != b.sortClass {
			return a.sortClass < b.sortClass
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		return a.seq < b.seq
	})
}

// contains 是否已注册同名处理器
func (p *pipeline) contains(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byID[name]
}

func (p *pipeline) snapshot() []*processorRegistration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*processorRegistration(nil), p.regs...)
}

// applyBeforeInstantiation 第一个返回非 nil 替身的处理器短路其余处理器
func (p *pipeline) applyBeforeInstantiation(name string, typ reflect.Type) (any, error) {
	for _, reg := range p.snapshot() {
		if reg.inst == nil {
			continue
		}
		obj, err := reg.inst.BeforeInstantiation(name, typ)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			return obj, nil
		}
	}
	return nil, nil
}

// applyAfterInstantiation 任一处理器返回 false 即否决属性填充
func (p *pipeline) applyAfterInstantiation(name string, obj any) (bool, error) {
	for _, reg := range p.snapshot() {
		if reg.inst == nil {
			continue
		}
		cont, err := reg.inst.AfterInstantiation(name, obj)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}
	}
	return true, nil
}

// applyProperties 依次让处理器重写属性集
func (p *pipeline) applyProperties(name string, obj any, props []definition.PropertyValue) ([]definition.PropertyValue, bool, error) {
	for _, reg := range p.snapshot() {
		if reg.prop == nil {
			continue
		}
		rewritten, populate, err := reg.prop.Properties(name, obj, props)
		if err != nil {
			return nil, false, err
		}
		if !populate {
			return nil, false, nil
		}
		props = rewritten
	}
	return props, true, nil
}

// applyBeforeInit before-initialization 变换链，nil 返回值保持原引用
func (p *pipeline) applyBeforeInit(name string, obj any) (any, error) {
	for _, reg := range p.snapshot() {
		if reg.life == nil {
			continue
		}
		next, err := reg.life.BeforeInit(name, obj)
		if err != nil {
			return nil, err
		}
		if next != nil {
			obj = next
		}
	}
	return obj, nil
}

// applyAfterInit after-initialization 变换链，nil 返回值保持原引用
func (p *pipeline) applyAfterInit(name string, obj any) (any, error) {
	for _, reg := range p.snapshot() {
		if reg.life == nil {
			continue
		}
		next, err := reg.life.AfterInit(name, obj)
		if err != nil {
			return nil, err
		}
		if next != nil {
			obj = next
		}
	}
	return obj, nil
}

// applyEarlyReference 早期引用钩子链
func (p *pipeline) applyEarlyReference(name string, obj any) any {
	for _, reg := range p.snapshot() {
		if reg.early == nil {
			continue
		}
		if next := reg.early.EarlyReference(name, obj); next != nil {
			obj = next
		}
	}
	return obj
}

// candidateConstructors 第一个给出候选的处理器生效
func (p *pipeline) candidateConstructors(name string, typ reflect.Type) []any {
	for _, reg := range p.snapshot() {
		if reg.ctor == nil {
			continue
		}
		if ctors := reg.ctor.CandidateConstructors(name, typ); len(ctors) > 0 {
			return ctors
		}
	}
	return nil
}
