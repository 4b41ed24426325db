package aop

import (
	"fmt"
	"reflect"
)

// Strategy 代理生成策略族
type Strategy int

const (
	// StrategyInterface 接口代理：只暴露声明接口的方法集
	StrategyInterface Strategy = iota
	// StrategyClass 类代理：暴露目标具体类型的全部导出方法
	StrategyClass
)

func (s Strategy) String() string {
	if s == StrategyClass {
		return "class"
	}
	return "interface"
}

// ConfigError 代理配置错误：既没有可用接口也没有可解析的目标类型等，
// 属于致命配置错误
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("aop: 代理配置无效: %s", e.Reason)
}

// Config 一次代理构建的目标配置
type Config struct {
	// Target 被代理对象
	Target any
	// TargetType 目标具体类型，缺省取自 Target
	TargetType reflect.Type
	// Interfaces 目标声明暴露的接口
	Interfaces []reflect.Type
	// Optimize 强制类代理（性能优先）
	Optimize bool
	// ProxyTargetClass 强制类代理（语义优先）
	ProxyTargetClass bool
	// Interceptors 拦截器链，按顺序执行
	Interceptors []Interceptor
}

func (c *Config) targetType() reflect.Type {
	if c.TargetType != nil {
		return c.TargetType
	}
	if c.Target != nil {
		return reflect.TypeOf(c.Target)
	}
	return nil
}

// usableInterfaces 过滤出真正可用的接口：
// 零方法的标记接口不算，Proxy 自身的内部接口不算
func (c *Config) usableInterfaces() []reflect.Type {
	proxyType := reflect.TypeOf((*Proxy)(nil)).Elem()

	var usable []reflect.Type
	for _, iface := range c.Interfaces {
		if iface == nil || iface.Kind() != reflect.Interface {
			continue
		}
		if iface.NumMethod() == 0 || iface == proxyType {
			continue
		}
		usable = append(usable, iface)
	}
	return usable
}

// SelectStrategy 按决策表为目标配置选定代理族，每个配置只求值一次：
//
//	optimize 或 proxy-target-class 置位        -> 类代理
//	无可用接口（或只有标记接口）               -> 类代理
//	其余                                       -> 接口代理
//
// 类代理额外要求可解析的具体目标类型；目标本身已是生成的代理时，
// 其声明接口足够的话仍走接口代理，避免代理套代理。
func SelectStrategy(cfg *Config) (Strategy, error) {
	usable := cfg.usableInterfaces()

	if cfg.Optimize || cfg.ProxyTargetClass || len(usable) == 0 {
		targetType := cfg.targetType()
		if targetType == nil {
			return 0, &ConfigError{Reason: "既没有可用接口也没有可解析的目标类型"}
		}

		// 目标已是代理：声明接口足够时降回接口代理
		if isProxyType(cfg.Target, targetType) {
			if len(usable) > 0 {
				return StrategyInterface, nil
			}
			if inner, ok := cfg.Target.(Proxy); ok && len(inner.ProxiedInterfaces()) > 0 {
				return StrategyInterface, nil
			}
			return 0, &ConfigError{Reason: "目标已是代理且没有可用接口"}
		}

		if !concreteType(targetType) {
			return 0, &ConfigError{Reason: fmt.Sprintf("类型 %v 不是可类代理的具体类型", targetType)}
		}
		return StrategyClass, nil
	}

	return StrategyInterface, nil
}

// CreateProxy 选定策略并构建代理
func CreateProxy(cfg *Config) (Proxy, error) {
	if cfg.Target == nil {
		return nil, &ConfigError{Reason: "缺少目标对象"}
	}

	strategy, err := SelectStrategy(cfg)
	if err != nil {
		return nil, err
	}

	if strategy == StrategyClass {
		return newClassProxy(cfg.Target, cfg.Interceptors)
	}

	interfaces := cfg.usableInterfaces()
	if len(interfaces) == 0 {
		if inner, ok := cfg.Target.(Proxy); ok {
			interfaces = inner.ProxiedInterfaces()
		}
	}
	return newInterfaceProxy(cfg.Target, interfaces, cfg.Interceptors)
}

// isProxyType 目标（或其类型）是否已是生成的代理
func isProxyType(target any, typ reflect.Type) bool {
	if _, ok := target.(Proxy); ok {
		return true
	}
	proxyType := reflect.TypeOf((*Proxy)(nil)).Elem()
	return typ != nil && typ.Implements(proxyType)
}

// concreteType 可用于类代理的具体类型：结构体或结构体指针
func concreteType(typ reflect.Type) bool {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ.Kind() == reflect.Struct
}
