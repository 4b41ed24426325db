package factory

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/ioc/definition"
	"github.com/gocrud/ioc/logging"
)

// ValueResolver 解析定义中的属性表达式（definition.Expr）。
// 典型实现由 config 包提供，按 "${key:default}" 语法对配置求值。
type ValueResolver interface {
	Resolve(expression string) (any, error)
}

// Factory 对象图创建引擎。
// 从定义注册表出发，把声明式定义变成装配完成的活实例，
// 解析实例间的循环引用，并驱动后置处理器管线。
type Factory struct {
	registry *definition.Registry
	cache    *singletonCache
	pipeline *pipeline

	// stateMu 串行化关闭与在途创建：创建持读锁，关闭持写锁
	stateMu sync.RWMutex
	closed  bool

	typeMu    sync.RWMutex
	typeNames map[string]reflect.Type

	listenerMu sync.RWMutex
	listeners  map[string]EventListener

	// processed 动态发现处理器时的"已处理"名称集，只增不减，保证终止
	processedMu sync.Mutex
	processed   map[string]bool

	// resolvedCtors 按定义缓存实例化策略选中的构造元数据
	resolvedCtors sync.Map // *definition.ObjectDefinition -> reflect.Value

	allowCircular     bool
	allowRawInjection bool
	valueResolver     ValueResolver
	logger            logging.Logger
}

// Option 配置工厂
type Option func(*Factory)

// WithLogger 设置日志记录器
func WithLogger(logger logging.Logger) Option {
	return func(f *Factory) {
		f.logger = logger.WithCategory("factory")
	}
}

// WithValueResolver 设置属性表达式解析器
func WithValueResolver(r ValueResolver) Option {
	return func(f *Factory) {
		f.valueResolver = r
	}
}

// AllowRawInjection 开启原始引用回退：依赖环中已被捕获的原始引用
// 与包装后的最终对象不一致时不再报错，依赖方保留原始引用
func AllowRawInjection() Option {
	return func(f *Factory) {
		f.allowRawInjection = true
	}
}

// DisallowCircularReferences 关闭 setter 级循环引用支持，
// 任何环都将以 CircularConstructionError 失败
func DisallowCircularReferences() Option {
	return func(f *Factory) {
		f.allowCircular = false
	}
}

// New 创建工厂。内置的事件订阅者探测器固定注册在
// after-initialization 钩子的最后。
func New(registry *definition.Registry, opts ...Option) *Factory {
	f := &Factory{
		registry:      registry,
		cache:         newSingletonCache(),
		pipeline:      newPipeline(),
		typeNames:     make(map[string]reflect.Type),
		listeners:     make(map[string]EventListener),
		processed:     make(map[string]bool),
		allowCircular: true,
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.pipeline.addPinned(&listenerDetector{factory: f}, true)
	return f
}

// Registry 返回底层定义注册表
func (f *Factory) Registry() *definition.Registry {
	return f.registry
}

// AddPostProcessor 注册后置处理器
func (f *Factory) AddPostProcessor(p PostProcessor) {
	f.pipeline.add(p)
	f.logger.Debug("注册后置处理器", logging.F("processor", p.Name()))
}

// RegisterTypeName 登记类型名，供 TypeName 形式的定义延迟解析
func (f *Factory) RegisterTypeName(name string, typ reflect.Type) {
	f.typeMu.Lock()
	defer f.typeMu.Unlock()
	f.typeNames[name] = typ
}

// RegisterSingleton 登记一个外部构造好的单例，
// 参与同一套缓存、类型匹配与依赖记录
func (f *Factory) RegisterSingleton(name string, instance any) error {
	if instance == nil {
		return fmt.Errorf("factory: 单例 '%s' 不能为 nil", name)
	}
	if !f.cache.addFinished(name, instance) {
		return fmt.Errorf("factory: 单例 '%s' 已存在", name)
	}
	if listener, ok := instance.(EventListener); ok {
		f.indexListener(name, listener)
	}
	return nil
}

// Resolve 解析命名对象。单例幂等返回同一实例，原型每次新建。
func (f *Factory) Resolve(name string) (any, error) {
	return f.resolveRoot(name, nil)
}

// ResolveArgs 以显式构造参数解析。显式参数只对原型或
// 尚未创建的单例生效，且不会写入单例缓存之外的任何定义状态。
func (f *Factory) ResolveArgs(name string, args ...any) (any, error) {
	return f.resolveRoot(name, args)
}

// ResolveType 按类型解析唯一匹配的对象，零个或多个匹配均报错。
// 空接口对任何定义都成立，与按类型装配的规则一致，不作为解析目标。
func (f *Factory) ResolveType(typ reflect.Type) (any, error) {
	if typ != nil && typ.Kind() == reflect.Interface && typ.NumMethod() == 0 {
		return nil, &UnsatisfiedDependencyError{
			Name: typ.String(), Dependency: typ.String(),
			Reason: "空接口匹配一切类型，不能作为解析目标",
		}
	}
	names := f.NamesForType(typ)
	switch len(names) {
	case 1:
		return f.Resolve(names[0])
	case 0:
		return nil, &UnsatisfiedDependencyError{
			Name: typ.String(), Dependency: typ.String(),
			Reason: "没有匹配该类型的对象",
		}
	}
	if primary, ok := f.primaryOf(names); ok {
		return f.Resolve(primary)
	}
	return nil, &UnsatisfiedDependencyError{
		Name: typ.String(), Dependency: typ.String(),
		Reason: fmt.Sprintf("类型匹配到多个候选 %v 且无 Primary", names),
	}
}

func (f *Factory) resolveRoot(name string, args []any) (any, error) {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()

	if f.closed {
		return nil, fmt.Errorf("factory: 工厂已关闭")
	}

	obj, err := f.doResolve(newCreationContext(), name, args)
	if err != nil {
		return nil, wrapCreation(f.registry.Canonical(name), err)
	}
	return obj, nil
}

// NamesForType 返回目标类型可赋值的全部定义名与已登记单例名。
// 这是按类型装配的候选解析步骤。
func (f *Factory) NamesForType(typ reflect.Type) []string {
	seen := make(map[string]bool)
	var names []string

	for _, name := range f.registry.Names() {
		def, err := f.registry.Merged(name)
		if err != nil {
			continue
		}
		defType, err := f.resolveType(def)
		if err != nil || defType == nil {
			continue
		}
		if typeMatches(defType, typ) {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, name := range f.cache.finishedNames() {
		if seen[name] {
			continue
		}
		inst, ok := f.cache.finished(name)
		if !ok {
			continue
		}
		if typeMatches(reflect.TypeOf(inst), typ) {
			names = append(names, name)
		}
	}
	return names
}

// primaryOf 在候选中找唯一的 Primary 定义
func (f *Factory) primaryOf(names []string) (string, bool) {
	var primary string
	for _, name := range names {
		def, err := f.registry.Merged(name)
		if err != nil || !def.Primary {
			continue
		}
		if primary != "" {
			return "", false
		}
		primary = name
	}
	return primary, primary != ""
}

// PreInstantiateSingletons 预实例化全部可缓存单例。
// 每个创建边界之间重扫注册表，及时纳入新注册的处理器定义；
// "已处理"集合单调增长，重扫必然终止。
func (f *Factory) PreInstantiateSingletons() error {
	if err := f.discoverProcessors(); err != nil {
		return err
	}

	for _, name := range f.registry.Names() {
		def, err := f.registry.Merged(name)
		if err != nil {
			return err
		}
		if !def.IsSingleton() || !def.CacheEligible {
			continue
		}
		if _, err := f.Resolve(name); err != nil {
			return err
		}
		if err := f.discoverProcessors(); err != nil {
			return err
		}
	}
	return nil
}

// discoverProcessors 扫描注册表中实现 PostProcessor 的定义并注册进管线
func (f *Factory) discoverProcessors() error {
	postProcessorType := reflect.TypeOf((*PostProcessor)(nil)).Elem()

	for {
		var pending []string

		f.processedMu.Lock()
		for _, name := range f.registry.Names() {
			if f.processed[name] {
				continue
			}
			def, err := f.registry.Merged(name)
			if err != nil {
				f.processed[name] = true
				continue
			}
			defType, err := f.resolveType(def)
			if err != nil || defType == nil || !defType.Implements(postProcessorType) {
				f.processed[name] = true
				continue
			}
			f.processed[name] = true
			pending = append(pending, name)
		}
		f.processedMu.Unlock()

		if len(pending) == 0 {
			return nil
		}

		for _, name := range pending {
			obj, err := f.Resolve(name)
			if err != nil {
				return err
			}
			proc, ok := obj.(PostProcessor)
			if !ok {
				continue
			}
			if !f.pipeline.contains(proc.Name()) {
				f.AddPostProcessor(proc)
			}
		}
	}
}

// Publish 向所有已索引的事件订阅者广播事件
func (f *Factory) Publish(event any) {
	f.listenerMu.RLock()
	listeners := make([]EventListener, 0, len(f.listeners))
	for _, l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.listenerMu.RUnlock()

	for _, l := range listeners {
		l.OnEvent(event)
	}
}

// ListenerNames 已索引的事件订阅者名称
func (f *Factory) ListenerNames() []string {
	f.listenerMu.RLock()
	defer f.listenerMu.RUnlock()

	names := make([]string, 0, len(f.listeners))
	for name := range f.listeners {
		names = append(names, name)
	}
	return names
}

func (f *Factory) indexListener(name string, l EventListener) {
	f.listenerMu.Lock()
	defer f.listenerMu.Unlock()
	f.listeners[name] = l
}

// Shutdown 关闭工厂：与在途创建串行化，按创建完成的逆序销毁单例，
// 销毁某个对象前先销毁仍存活的依赖方。ctx 到期后跳过剩余销毁。
func (f *Factory) Shutdown(ctx context.Context) error {
	f.stateMu.Lock()
	defer f.stateMu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	disposables := f.cache.takeDisposables()
	byName := make(map[string]disposableEntry, len(disposables))
	for _, d := range disposables {
		byName[d.name] = d
	}

	destroyed := make(map[string]bool)
	var firstErr error

	var destroyOne func(d disposableEntry)
	destroyOne = func(d disposableEntry) {
		if destroyed[d.name] {
			return
		}
		destroyed[d.name] = true

		// 依赖方先于被依赖方销毁
		for _, dep := range f.cache.dependentsOf(d.name) {
			if entry, ok := byName[dep]; ok {
				destroyOne(entry)
			}
		}

		f.logger.Debug("销毁单例", logging.F("name", d.name))
		if err := d.destroy(); err != nil {
			f.logger.Warn("销毁单例失败", logging.F("name", d.name), logging.F("error", err))
			if firstErr == nil {
				firstErr = fmt.Errorf("factory: 销毁 '%s' 失败: %w", d.name, err)
			}
		}
	}

	for i := len(disposables) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			if firstErr == nil {
				firstErr = ctx.Err()
			}
			return firstErr
		default:
		}
		destroyOne(disposables[i])
	}

	f.listenerMu.Lock()
	f.listeners = make(map[string]EventListener)
	f.listenerMu.Unlock()

	return firstErr
}

// resolveType 返回定义的具体类型，TypeName 形式经类型表延迟解析
func (f *Factory) resolveType(def *definition.ObjectDefinition) (reflect.Type, error) {
	if def.Type != nil {
		return def.Type, nil
	}
	if def.TypeName == "" {
		return nil, nil
	}

	f.typeMu.RLock()
	typ, ok := f.typeNames[def.TypeName]
	f.typeMu.RUnlock()

	if !ok {
		return nil, &definition.Error{Name: def.TypeName, Reason: "类型名未登记"}
	}
	return typ, nil
}

// typeMatches 定义类型能否赋值给目标类型（接口或具体类型）
func typeMatches(have, want reflect.Type) bool {
	if have == nil || want == nil {
		return false
	}
	if have == want {
		return true
	}
	if want.Kind() == reflect.Interface {
		return have.Implements(want)
	}
	return have.AssignableTo(want)
}
