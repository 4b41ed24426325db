package factory

import (
	"reflect"

	"github.com/gocrud/ioc/definition"
	"github.com/gocrud/ioc/logging"
)

// doResolve 每个名称的创建状态机入口。
// ctx 随递归传递，属性解析递归回到本链上正在创建的名称时
// 走早期引用路径而不是无限递归。
func (f *Factory) doResolve(ctx *creationContext, name string, args []any) (any, error) {
	canonical := f.registry.Canonical(name)

	if ctx.inCreation(canonical) {
		// 同链重入。setter 级环经早期引用闭合；
		// 没有早期工厂可用说明环严格穿过构造参数，不可解。
		if f.allowCircular {
			if ref, ok := f.cache.earlyReference(canonical); ok {
				f.logger.Trace("依赖环经早期引用闭合", logging.F("name", canonical))
				return ref, nil
			}
		}
		return nil, &CircularConstructionError{Cycle: ctx.cycleFrom(canonical)}
	}

	if args == nil {
		if inst, ok := f.cache.finished(canonical); ok {
			return inst, nil
		}
	}

	def, err := f.registry.Merged(canonical)
	if err != nil {
		return nil, err
	}

	// depends-on 强制先行
	for _, dep := range def.DependsOn {
		f.cache.registerDependent(f.registry.Canonical(dep), canonical)
		if _, err := f.doResolve(ctx, dep, nil); err != nil {
			return nil, err
		}
	}

	if def.IsPrototype() {
		f.logger.Trace("创建原型实例", logging.F("name", canonical))
		return f.createObject(ctx, canonical, def, args)
	}

	// 单例路径。创建中且已装好早期工厂的名称直接经早期引用返回：
	// 钩子在别的对象创建期间重新进入工厂时拿到的是新的创建上下文，
	// 不能在 begin 上等待本 goroutine 自己收尾。等待方只阻塞到
	// 早期工厂或成品就位为止。
	if f.allowCircular {
		if ref, ok := f.cache.earlyReference(canonical); ok {
			f.logger.Trace("创建中的对象经早期引用暴露", logging.F("name", canonical))
			return ref, nil
		}
	}

	// 跨 goroutine 争用在 begin 内部阻塞串行化
	inst, finished := f.cache.begin(canonical)
	if finished {
		return inst, nil
	}

	inst, err = f.createObject(ctx, canonical, def, args)
	if err != nil {
		// 任何失败都回滚 creating 标记，缓存保持干净
		f.cache.fail(canonical)
		return nil, err
	}

	if def.CacheEligible {
		f.cache.finish(canonical, inst)
	} else {
		f.cache.fail(canonical)
	}
	return inst, nil
}

// createObject 单个对象的创建编排：
// 实例化 -> 早期暴露 -> 属性填充 -> 初始化 -> 引用一致性检查。
func (f *Factory) createObject(ctx *creationContext, name string, def *definition.ObjectDefinition, args []any) (any, error) {
	ctx.push(name)
	defer ctx.pop()

	typ, err := f.resolveType(def)
	if err != nil {
		return nil, err
	}

	// before-instantiation：替身对象完全取代常规创建，
	// 只对替身补一轮 after-initialization
	surrogate, err := f.pipeline.applyBeforeInstantiation(name, typ)
	if err != nil {
		return nil, err
	}
	if surrogate != nil {
		f.logger.Debug("实例化被替身短路", logging.F("name", name))
		return f.pipeline.applyAfterInit(name, surrogate)
	}

	raw, err := f.instantiate(ctx, name, def, typ, args)
	if err != nil {
		return nil, err
	}

	// 单例在属性填充前安装早期引用工厂；
	// 工厂被依赖方实际取用时才应用早期引用钩子，且只应用一次
	earlyExposed := def.IsSingleton() && f.allowCircular && f.cache.creating(name)
	if earlyExposed {
		f.cache.installEarly(name, func() any {
			return f.pipeline.applyEarlyReference(name, raw)
		})
	}

	if err := f.populate(ctx, name, def, raw); err != nil {
		return nil, err
	}

	exposed := raw
	if exposed, err = f.pipeline.applyBeforeInit(name, exposed); err != nil {
		return nil, err
	}
	if err := invokeInit(name, exposed, def.InitMethod); err != nil {
		return nil, err
	}
	if exposed, err = f.pipeline.applyAfterInit(name, exposed); err != nil {
		return nil, err
	}

	if earlyExposed {
		if earlyRef, consumed := f.cache.consumedEarly(name); consumed {
			if identical(exposed, raw) {
				// 初始化没有更换对象：改用早期引用暴露，
				// 与依赖方已捕获的引用保持同一性
				exposed = earlyRef
			} else if !f.allowRawInjection {
				// 依赖方捕获原始引用之后对象又被包装，且未开启回退
				return nil, &RawReferenceLeakedError{
					Name:       name,
					Dependents: f.capturedDependents(name),
				}
			}
		}
	}

	if def.IsSingleton() {
		if destroy := destroyFunc(exposed, def.DestroyMethod); destroy != nil {
			f.cache.registerDisposable(name, destroy)
		}
	}

	f.logger.Trace("对象创建完成", logging.F("name", name), logging.F("scope", string(def.Scope)))
	return exposed, nil
}

// capturedDependents 实际拿到过原始引用的依赖方：
// 在本对象完成之前已经创建完毕的那些
func (f *Factory) capturedDependents(name string) []string {
	var captured []string
	for _, dep := range f.cache.dependentsOf(name) {
		if _, ok := f.cache.finished(dep); ok {
			captured = append(captured, dep)
		}
	}
	return captured
}

// identical 引用同一性比较，不可比较的值视为不同
func identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	if av.Kind() == reflect.Ptr && bv.Kind() == reflect.Ptr {
		return av.Pointer() == bv.Pointer()
	}
	if av.Type() != bv.Type() {
		return false
	}
	if !av.Comparable() {
		return false
	}
	return a == b
}
