package aop

import (
	"fmt"
	"reflect"
	"sort"
)

// Invocation 一次被拦截的方法调用，沿拦截器链传递
type Invocation struct {
	// MethodName 被调用的方法名
	MethodName string
	// Args 调用参数
	Args []any

	method reflect.Value
	target any
	chain  []Interceptor
	index  int
}

// Target 返回被代理的原始对象
func (inv *Invocation) Target() any {
	return inv.target
}

// Proceed 推进到链上的下一个拦截器，链走完后调用目标方法
func (inv *Invocation) Proceed() ([]any, error) {
	if inv.index < len(inv.chain) {
		interceptor := inv.chain[inv.index]
		inv.index++
		return interceptor.Invoke(inv)
	}

	methodType := inv.method.Type()
	if methodType.NumIn() != len(inv.Args) {
		return nil, fmt.Errorf("aop: 方法 '%s' 期望 %d 个参数，得到 %d 个",
			inv.MethodName, methodType.NumIn(), len(inv.Args))
	}

	in := make([]reflect.Value, len(inv.Args))
	for i, arg := range inv.Args {
		if arg == nil {
			in[i] = reflect.Zero(methodType.In(i))
			continue
		}
		av := reflect.ValueOf(arg)
		if !av.Type().AssignableTo(methodType.In(i)) {
			return nil, fmt.Errorf("aop: 方法 '%s' 参数 %d 类型不匹配: 需要 %v，得到 %T",
				inv.MethodName, i, methodType.In(i), arg)
		}
		in[i] = av
	}

	results := inv.method.Call(in)
	out := make([]any, len(results))
	for i, r := range results {
		out[i] = r.Interface()
	}
	return out, nil
}

// Interceptor 环绕通知。实现方在 Invoke 中调用 inv.Proceed()
// 继续链条，也可以不调用以短路目标方法。
type Interceptor interface {
	Invoke(inv *Invocation) ([]any, error)
}

// InterceptorFunc 函数形式的拦截器
type InterceptorFunc func(inv *Invocation) ([]any, error)

func (f InterceptorFunc) Invoke(inv *Invocation) ([]any, error) { return f(inv) }

// Proxy 生成的替身对象，对目标的调用经由拦截器链转发
type Proxy interface {
	// Call 调用目标方法。方法不在代理暴露的方法集内时报错。
	Call(method string, args ...any) ([]any, error)
	// Unwrap 返回原始目标对象
	Unwrap() any
	// TargetType 目标具体类型
	TargetType() reflect.Type
	// ProxiedInterfaces 代理声明暴露的接口（接口代理族）
	ProxiedInterfaces() []reflect.Type
	// ProxyStrategy 生成本代理所用的策略族
	ProxyStrategy() Strategy
}

// proxyCore 两个代理族共享的实现
type proxyCore struct {
	target     any
	targetType reflect.Type
	strategy   Strategy
	interfaces []reflect.Type
	chain      []Interceptor

	// methods 代理暴露的方法集，按策略族构建
	methods map[string]reflect.Value

	// inner 目标本身已是代理时经由它转发，避免代理套代理的方法表穿透
	inner Proxy
}

func (p *proxyCore) Call(method string, args ...any) ([]any, error) {
	if p.inner != nil {
		return p.invokeThrough(method, args, func(nestedArgs []any) ([]any, error) {
			return p.inner.Call(method, nestedArgs...)
		})
	}

	m, ok := p.methods[method]
	if !ok {
		return nil, fmt.Errorf("aop: 方法 '%s' 不在代理方法集内", method)
	}

	inv := &Invocation{
		MethodName: method,
		Args:       args,
		method:     m,
		target:     p.target,
		chain:      p.chain,
	}
	return inv.Proceed()
}

// invokeThrough 对内层代理的转发同样要过本层拦截器链
func (p *proxyCore) invokeThrough(method string, args []any, terminal func([]any) ([]any, error)) ([]any, error) {
	chain := append([]Interceptor(nil), p.chain...)
	chain = append(chain, InterceptorFunc(func(inv *Invocation) ([]any, error) {
		return terminal(inv.Args)
	}))

	inv := &Invocation{
		MethodName: method,
		Args:       args,
		target:     p.target,
		chain:      chain,
	}
	return inv.Proceed()
}

func (p *proxyCore) Unwrap() any                      { return p.target }
func (p *proxyCore) TargetType() reflect.Type         { return p.targetType }
func (p *proxyCore) ProxiedInterfaces() []reflect.Type { return p.interfaces }
func (p *proxyCore) ProxyStrategy() Strategy          { return p.strategy }

// Methods 代理暴露的方法名，按字典序
func (p *proxyCore) Methods() []string {
	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// newInterfaceProxy 接口代理：方法集取声明接口的并集
func newInterfaceProxy(target any, interfaces []reflect.Type, chain []Interceptor) (*proxyCore, error) {
	p := &proxyCore{
		target:     target,
		targetType: reflect.TypeOf(target),
		strategy:   StrategyInterface,
		interfaces: interfaces,
		chain:      chain,
		methods:    make(map[string]reflect.Value),
	}

	if innerProxy, ok := target.(Proxy); ok {
		p.inner = innerProxy
		p.targetType = innerProxy.TargetType()
		return p, nil
	}

	targetVal := reflect.ValueOf(target)
	for _, iface := range interfaces {
		if iface.Kind() != reflect.Interface {
			return nil, &ConfigError{Reason: fmt.Sprintf("%v 不是接口类型", iface)}
		}
		if !targetVal.Type().Implements(iface) {
			return nil, &ConfigError{Reason: fmt.Sprintf("目标 %T 未实现接口 %v", target, iface)}
		}
		for i := 0; i < iface.NumMethod(); i++ {
			name := iface.Method(i).Name
			p.methods[name] = targetVal.MethodByName(name)
		}
	}
	return p, nil
}

// newClassProxy 类代理：方法集取目标具体类型的全部导出方法
func newClassProxy(target any, chain []Interceptor) (*proxyCore, error) {
	targetVal := reflect.ValueOf(target)
	targetType := targetVal.Type()

	p := &proxyCore{
		target:     target,
		targetType: targetType,
		strategy:   StrategyClass,
		chain:      chain,
		methods:    make(map[string]reflect.Value),
	}

	for i := 0; i < targetType.NumMethod(); i++ {
		m := targetType.Method(i)
		if !m.IsExported() {
			continue
		}
		p.methods[m.Name] = targetVal.Method(i)
	}
	return p, nil
}
