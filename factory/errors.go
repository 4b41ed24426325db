package factory

import (
	"fmt"
	"strings"
)

// CircularConstructionError 构造函数级别的循环依赖。
// 环中的对象彼此只能通过构造参数获得，没有任何一个能先产出原始实例，
// 这种环不可解，立即失败且不重试。
type CircularConstructionError struct {
	Cycle []string
}

func (e *CircularConstructionError) Error() string {
	return fmt.Sprintf("factory: 构造级循环依赖不可解: %s", strings.Join(e.Cycle, " -> "))
}

// RawReferenceLeakedError 早期引用已被依赖方捕获之后，
// 初始化阶段又把实例包装成了别的对象（通常是代理），
// 且未开启原始引用回退，两份引用无法再一致。
type RawReferenceLeakedError struct {
	Name       string
	Dependents []string
}

func (e *RawReferenceLeakedError) Error() string {
	return fmt.Sprintf(
		"factory: 对象 '%s' 在初始化阶段被包装，但其原始引用已被 [%s] 捕获；"+
			"要么调整依赖关系避免环，要么开启 AllowRawInjection",
		e.Name, strings.Join(e.Dependents, ", "))
}

// UnsatisfiedDependencyError 必需的属性或构造参数找不到候选，
// 或按类型装配出现无法消歧的多个候选
type UnsatisfiedDependencyError struct {
	Name       string
	Dependency string
	Reason     string
	Cause      error
}

func (e *UnsatisfiedDependencyError) Error() string {
	msg := fmt.Sprintf("factory: 对象 '%s' 的依赖 '%s' 无法满足: %s", e.Name, e.Dependency, e.Reason)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnsatisfiedDependencyError) Unwrap() error { return e.Cause }

// InstantiationError 构造函数、工厂方法或工厂回调抛出的底层失败
type InstantiationError struct {
	Name  string
	Cause error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("factory: 对象 '%s' 实例化失败: %v", e.Name, e.Cause)
}

func (e *InstantiationError) Unwrap() error { return e.Cause }

// InitializationError 初始化方法或生命周期钩子抛出的底层失败
type InitializationError struct {
	Name  string
	Cause error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("factory: 对象 '%s' 初始化失败: %v", e.Name, e.Cause)
}

func (e *InitializationError) Unwrap() error { return e.Cause }

// CreationError 最外层 Resolve 返回的包装错误，
// 携带最终失败对象的名称与完整因果链
type CreationError struct {
	Name  string
	Cause error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("factory: 创建对象 '%s' 失败: %v", e.Name, e.Cause)
}

func (e *CreationError) Unwrap() error { return e.Cause }

// wrapCreation 保证外层只出现一层 CreationError
func wrapCreation(name string, err error) error {
	if _, ok := err.(*CreationError); ok {
		return err
	}
	return &CreationError{Name: name, Cause: err}
}
