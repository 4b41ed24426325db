package factory

import (
	"sync"
)

// singletonState 单例缓存条目的状态。
// 每个名称同一时刻只处于三种状态之一：
// 不存在（absent）、创建中（creating，可携带早期引用工厂）、成品（finished）。
type singletonState int

const (
	stateCreating singletonState = iota
	stateFinished
)

// singletonEntry 单例缓存条目
type singletonEntry struct {
	state    singletonState
	instance any

	// early 创建中对象的早期引用工厂，用于打破 setter 级依赖环
	early func() any
	// earlyRef / earlyDone 记录早期引用是否真的被某个依赖方取走，
	// 取走过的引用要与最终暴露对象做一致性比对
	earlyRef  any
	earlyDone bool

	// done 创建结束（无论成败）时关闭，跨 goroutine 的竞争者在上面等待
	done chan struct{}
}

// singletonCache 三级单例缓存与依赖边记录。
// 整个缓存由一把锁保护：规格只要求注册表级别的互斥，
// 名称粒度的锁是优化而非正确性需求。
type singletonCache struct {
	mu      sync.Mutex
	entries map[string]*singletonEntry

	// dependents[name] = 依赖 name 的对象集合；dependencies 为反向
	dependents   map[string]map[string]bool
	dependencies map[string]map[string]bool

	// disposables 按创建完成顺序记录需要销毁的单例
	disposables []disposableEntry
}

type disposableEntry struct {
	name    string
	destroy func() error
}

func newSingletonCache() *singletonCache {
	return &singletonCache{
		entries:      make(map[string]*singletonEntry),
		dependents:   make(map[string]map[string]bool),
		dependencies: make(map[string]map[string]bool),
	}
}

// finished 返回成品实例
func (c *singletonCache) finished(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok || e.state != stateFinished {
		return nil, false
	}
	return e.instance, true
}

// creating 名称是否处于创建中
func (c *singletonCache) creating(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	return ok && e.state == stateCreating
}

// begin 获取 name 的创建权。
// 返回 (instance, true) 表示已有成品；返回 (nil, false) 表示调用方取得创建权，
// 之后必须以 finish 或 fail 收尾。另一个 goroutine 正在创建同名对象时，
// 当前调用阻塞到对方结束再重试。同一调用链内的重入不会走到这里，
// 由创建上下文在上层拦截。
func (c *singletonCache) begin(name string) (any, bool) {
	for {
		c.mu.Lock()
		e, ok := c.entries[name]
		if !ok {
			c.entries[name] = &singletonEntry{
				state: stateCreating,
				done:  make(chan struct{}),
			}
			c.mu.Unlock()
			return nil, false
		}
		if e.state == stateFinished {
			inst := e.instance
			c.mu.Unlock()
			return inst, true
		}
		done := e.done
		c.mu.Unlock()
		<-done
	}
}

// installEarly 在创建中的条目上安装早期引用工厂
func (c *singletonCache) installEarly(name string, fn func() any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[name]; ok && e.state == stateCreating {
		e.early = fn
	}
}

// earlyReference 取创建中对象的当前暴露引用。
// 首次取用时调用早期工厂并记住结果，之后始终返回同一个引用。
// 条目已是成品时直接返回成品。没有可用早期工厂时返回 false，
// 这正是构造级环无解的信号。
func (c *singletonCache) earlyReference(name string) (any, bool) {
	c.mu.Lock()
	e, ok := c.entries[name]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	if e.state == stateFinished {
		inst := e.instance
		c.mu.Unlock()
		return inst, true
	}
	if e.earlyDone {
		ref := e.earlyRef
		c.mu.Unlock()
		return ref, true
	}
	fn := e.early
	c.mu.Unlock()

	if fn == nil {
		return nil, false
	}

	// 工厂可能调用早期引用钩子（代理包装等），不在锁内执行
	ref := fn()

	c.mu.Lock()
	if !e.earlyDone {
		e.earlyRef = ref
		e.earlyDone = true
	}
	ref = e.earlyRef
	c.mu.Unlock()
	return ref, true
}

// consumedEarly 早期引用是否真的被取走过，取走过则一并返回
func (c *singletonCache) consumedEarly(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok || !e.earlyDone {
		return nil, false
	}
	return e.earlyRef, true
}

// finish 创建成功，条目晋升为成品并唤醒等待者
func (c *singletonCache) finish(name string, instance any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		c.entries[name] = &singletonEntry{state: stateFinished, instance: instance}
		return
	}
	e.state = stateFinished
	e.instance = instance
	e.early = nil
	e.earlyRef = nil
	e.earlyDone = false
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
}

// fail 创建失败，条目整体移除，缓存保持干净
func (c *singletonCache) fail(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return
	}
	delete(c.entries, name)
	if e.done != nil {
		close(e.done)
	}
}

// addFinished 直接登记一个外部构造好的成品单例
func (c *singletonCache) addFinished(name string, instance any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; exists {
		return false
	}
	c.entries[name] = &singletonEntry{state: stateFinished, instance: instance}
	return true
}

// finishedNames 所有成品单例的名称
func (c *singletonCache) finishedNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.entries))
	for name, e := range c.entries {
		if e.state == stateFinished {
			names = append(names, name)
		}
	}
	return names
}

// registerDependent 记录依赖边：dependent 依赖 name
func (c *singletonCache) registerDependent(name, dependent string) {
	if name == dependent {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dependents[name] == nil {
		c.dependents[name] = make(map[string]bool)
	}
	c.dependents[name][dependent] = true

	if c.dependencies[dependent] == nil {
		c.dependencies[dependent] = make(map[string]bool)
	}
	c.dependencies[dependent][name] = true
}

// dependentsOf 返回依赖 name 的对象名
func (c *singletonCache) dependentsOf(name string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.dependents[name]
	names := make([]string, 0, len(set))
	for dep := range set {
		names = append(names, dep)
	}
	return names
}

// registerDisposable 登记需要在关闭时销毁的单例
func (c *singletonCache) registerDisposable(name string, destroy func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disposables = append(c.disposables, disposableEntry{name: name, destroy: destroy})
}

// takeDisposables 取走全部销毁回调（按创建完成顺序），并清空缓存条目。
// 调用方持有工厂锁，销毁与在途创建由同一把锁串行化。
func (c *singletonCache) takeDisposables() []disposableEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.disposables
	c.disposables = nil
	c.entries = make(map[string]*singletonEntry)
	c.dependents = make(map[string]map[string]bool)
	c.dependencies = make(map[string]map[string]bool)
	return out
}
