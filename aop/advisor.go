package aop

import (
	"reflect"
	"sort"
)

// Advisor 一条通知及其适用范围
type Advisor struct {
	// Name 通知名称，用于日志
	Name string
	// Interceptor 实际执行的环绕通知
	Interceptor Interceptor
	// TypeMatches 目标类型过滤，nil 表示匹配全部类型
	TypeMatches func(typ reflect.Type) bool
	// Pointcut 方法级切点，nil 表示匹配全部方法
	Pointcut func(typ reflect.Type, method string) bool
	// Interfaces 通知希望目标以接口代理暴露的接口
	Interfaces []reflect.Type
	// Infrastructure 容器基础设施通知，
	// 基础设施级自动代理参与者只认这类通知
	Infrastructure bool
	// Order 通知在拦截器链上的顺序，小者先执行
	Order int
}

// appliesTo 通知是否适用于目标类型
func (a *Advisor) appliesTo(typ reflect.Type) bool {
	if a.Interceptor == nil {
		return false
	}
	if a.TypeMatches != nil && !a.TypeMatches(typ) {
		return false
	}
	if a.Pointcut == nil {
		return true
	}
	// 切点至少要命中一个导出方法
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if m.IsExported() && a.Pointcut(typ, m.Name) {
			return true
		}
	}
	return false
}

// Aspect 声明式切面：实现此接口的对象向
// Aspect 匹配级的自动代理参与者贡献一组通知
type Aspect interface {
	Advisors() []*Advisor
}

// sortAdvisors 按 Order 稳定排序
func sortAdvisors(advisors []*Advisor) {
	sort.SliceStable(advisors, func(i, j int) bool {
		return advisors[i].Order < advisors[j].Order
	})
}

// chainOf 把通知序列转为拦截器链。
// 带切点的通知包装成按方法名过滤的拦截器。
func chainOf(advisors []*Advisor, typ reflect.Type) []Interceptor {
	chain := make([]Interceptor, 0, len(advisors))
	for _, adv := range advisors {
		if adv.Pointcut == nil {
			chain = append(chain, adv.Interceptor)
			continue
		}
		pointcut := adv.Pointcut
		interceptor := adv.Interceptor
		chain = append(chain, InterceptorFunc(func(inv *Invocation) ([]any, error) {
			if pointcut(typ, inv.MethodName) {
				return interceptor.Invoke(inv)
			}
			return inv.Proceed()
		}))
	}
	return chain
}

// interfacesOf 收集通知声明的接口并集（去重、保持出现顺序）
func interfacesOf(advisors []*Advisor) []reflect.Type {
	seen := make(map[reflect.Type]bool)
	var out []reflect.Type
	for _, adv := range advisors {
		for _, iface := range adv.Interfaces {
			if iface == nil || seen[iface] {
				continue
			}
			seen[iface] = true
			out = append(out, iface)
		}
	}
	return out
}
