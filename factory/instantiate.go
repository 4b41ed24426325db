package factory

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/gocrud/ioc/definition"
)

// instantiate 实例化策略。确定性的选择顺序：
// 外部工厂回调 > 显式工厂方法 > 定义上缓存的已解析构造元数据 >
// 显式构造函数 > 管线钩子给出的候选构造函数 > 零值构造。
func (f *Factory) instantiate(ctx *creationContext, name string, def *definition.ObjectDefinition, typ reflect.Type, args []any) (any, error) {
	if def.Factory != nil {
		obj, err := def.Factory()
		if err != nil {
			return nil, &InstantiationError{Name: name, Cause: err}
		}
		if obj == nil {
			return nil, &InstantiationError{Name: name, Cause: errors.New("工厂回调返回 nil")}
		}
		return obj, nil
	}

	if def.FactoryMethod != "" {
		return f.invokeFactoryMethod(ctx, name, def, args)
	}

	// 之前创建同名原型时选中的构造函数直接复用
	if cached, ok := f.resolvedCtors.Load(def); ok {
		return f.invokeConstructor(ctx, name, def, cached.(reflect.Value), args)
	}

	if def.Constructor != nil {
		fn := reflect.ValueOf(def.Constructor)
		if fn.Kind() != reflect.Func {
			return nil, &definition.Error{Name: name, Reason: fmt.Sprintf("Constructor 必须是函数，得到 %T", def.Constructor)}
		}
		f.resolvedCtors.Store(def, fn)
		return f.invokeConstructor(ctx, name, def, fn, args)
	}

	if candidates := f.pipeline.candidateConstructors(name, typ); len(candidates) > 0 {
		return f.invokeBestCandidate(ctx, name, def, candidates, args)
	}

	if def.Autowire == definition.AutowireConstructor {
		return nil, &definition.Error{Name: name, Reason: "构造装配需要 Constructor 或钩子提供的候选构造函数"}
	}

	// 零值构造
	if typ == nil {
		return nil, &definition.Error{Name: name, Reason: "没有可实例化的类型"}
	}
	switch {
	case typ.Kind() == reflect.Ptr && typ.Elem().Kind() == reflect.Struct:
		return reflect.New(typ.Elem()).Interface(), nil
	case typ.Kind() == reflect.Struct:
		return reflect.New(typ).Interface(), nil
	}
	return nil, &definition.Error{Name: name, Reason: fmt.Sprintf("类型 %v 无法零值构造", typ)}
}

// invokeBestCandidate 贪心选择：参数最多且全部可满足的候选先赢。
// 选中的候选缓存在定义上，下次实例化不再重试。
func (f *Factory) invokeBestCandidate(ctx *creationContext, name string, def *definition.ObjectDefinition, candidates []any, args []any) (any, error) {
	fns := make([]reflect.Value, 0, len(candidates))
	for _, c := range candidates {
		fn := reflect.ValueOf(c)
		if fn.Kind() == reflect.Func {
			fns = append(fns, fn)
		}
	}
	if len(fns) == 0 {
		return nil, &definition.Error{Name: name, Reason: "候选构造函数均不是函数"}
	}
	sort.SliceStable(fns, func(i, j int) bool {
		return fns[i].Type().NumIn() > fns[j].Type().NumIn()
	})

	var lastErr error
	for _, fn := range fns {
		obj, err := f.invokeConstructor(ctx, name, def, fn, args)
		if err == nil {
			f.resolvedCtors.Store(def, fn)
			return obj, nil
		}
		lastErr = err
		// 构造环无解时不再尝试其余候选
		var cycle *CircularConstructionError
		if errors.As(err, &cycle) {
			break
		}
	}
	return nil, lastErr
}

// invokeFactoryMethod 解析工厂对象并调用其命名方法
func (f *Factory) invokeFactoryMethod(ctx *creationContext, name string, def *definition.ObjectDefinition, args []any) (any, error) {
	if def.FactoryObject == "" {
		return nil, &definition.Error{Name: name, Reason: "FactoryMethod 缺少 FactoryObject"}
	}

	factoryObj, err := f.doResolve(ctx, def.FactoryObject, nil)
	if err != nil {
		return nil, &UnsatisfiedDependencyError{Name: name, Dependency: def.FactoryObject, Reason: "工厂对象不可用", Cause: err}
	}
	f.cache.registerDependent(f.registry.Canonical(def.FactoryObject), name)

	method := reflect.ValueOf(factoryObj).MethodByName(def.FactoryMethod)
	if !method.IsValid() {
		return nil, &definition.Error{Name: name,
			Reason: fmt.Sprintf("工厂方法 '%s' 在 %T 上不可解析", def.FactoryMethod, factoryObj)}
	}
	return f.invokeConstructor(ctx, name, def, method, args)
}

// invokeConstructor 调用构造函数或工厂方法。
// 参数按顺序取：显式调用参数 > 定义中的 ConstructorArgs > 按类型装配。
// 返回值约定 T 或 (T, error)。
func (f *Factory) invokeConstructor(ctx *creationContext, name string, def *definition.ObjectDefinition, fn reflect.Value, args []any) (any, error) {
	fnType := fn.Type()
	if fnType.NumOut() == 0 {
		return nil, &definition.Error{Name: name, Reason: "构造函数必须至少返回一个值"}
	}

	byIndex := make(map[int]any, len(def.ConstructorArgs))
	for _, arg := range def.ConstructorArgs {
		byIndex[arg.Index] = arg.Value
	}

	in := make([]reflect.Value, fnType.NumIn())
	for i := 0; i < fnType.NumIn(); i++ {
		paramType := fnType.In(i)

		var value any
		switch {
		case i < len(args):
			value = args[i]
		default:
			spec, hasSpec := byIndex[i]
			if hasSpec {
				resolved, err := f.resolveValueSpec(ctx, name, spec)
				if err != nil {
					return nil, err
				}
				value = resolved
			} else {
				resolved, err := f.autowireArgument(ctx, name, fnType, i, paramType)
				if err != nil {
					return nil, err
				}
				value = resolved
			}
		}

		converted, err := convertValue(value, paramType)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{
				Name: name, Dependency: fmt.Sprintf("参数 %d", i),
				Reason: "类型不匹配", Cause: err,
			}
		}
		in[i] = converted
	}

	results := fn.Call(in)

	// 最后一个返回值为 error 时按约定处理
	if len(results) > 1 {
		last := results[len(results)-1]
		if last.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
			if !last.IsNil() {
				return nil, &InstantiationError{Name: name, Cause: last.Interface().(error)}
			}
		}
	}
	return results[0].Interface(), nil
}

// autowireArgument 构造参数按类型装配，无法满足即失败
// （构造级依赖是必需依赖，没有按名装配的静默跳过）
func (f *Factory) autowireArgument(ctx *creationContext, name string, fnType reflect.Type, index int, paramType reflect.Type) (any, error) {
	dependency := fmt.Sprintf("参数 %d (%v)", index, paramType)

	candidates := f.NamesForType(paramType)
	switch len(candidates) {
	case 0:
		return nil, &UnsatisfiedDependencyError{Name: name, Dependency: dependency, Reason: "没有匹配该类型的候选"}
	case 1:
		f.cache.registerDependent(candidates[0], name)
		return f.doResolve(ctx, candidates[0], nil)
	}

	if primary, ok := f.primaryOf(candidates); ok {
		f.cache.registerDependent(primary, name)
		return f.doResolve(ctx, primary, nil)
	}
	return nil, &UnsatisfiedDependencyError{
		Name: name, Dependency: dependency,
		Reason: fmt.Sprintf("多个候选 %v 且无 Primary", candidates),
	}
}
