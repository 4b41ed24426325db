package definition

import (
	"fmt"
	"reflect"
)

// Scope 对象的生命周期范围
type Scope string

const (
	// ScopeSingleton 每个容器共享一个实例
	ScopeSingleton Scope = "singleton"
	// ScopePrototype 每次解析创建一个新实例
	ScopePrototype Scope = "prototype"
)

// AutowireMode 自动装配模式
type AutowireMode int

const (
	// AutowireNone 不进行自动装配，只应用显式属性值
	AutowireNone AutowireMode = iota
	// AutowireByName 按属性名从注册表中查找同名定义
	AutowireByName
	// AutowireByType 按属性类型从注册表中查找候选定义
	AutowireByType
	// AutowireConstructor 按构造函数参数类型装配
	AutowireConstructor
)

// Role 定义的角色，基础设施定义不参与用户层的自动代理等处理
type Role int

const (
	// RoleApplication 应用层对象
	RoleApplication Role = iota
	// RoleInfrastructure 容器内部的基础设施对象
	RoleInfrastructure
)

// Ref 属性值或构造参数中对另一个命名对象的引用
type Ref struct {
	Name string
}

// Expr 属性表达式，形如 "${db.master.dsn:default}"
// 解析时通过 factory 配置的 ValueResolver 求值
type Expr struct {
	Expression string
}

// PropertyValue 一条属性赋值，Value 可以是字面量、Ref、Expr，
// 或元素为上述任意类型的 []any
type PropertyValue struct {
	Name  string
	Value any
}

// ConstructorArg 构造函数/工厂方法的显式参数
// Index 为参数位置，未显式给出的参数按类型自动装配
type ConstructorArg struct {
	Index int
	Value any
}

// ObjectDefinition 描述如何构建一个命名对象的声明式记录。
// 定义在冻结（Freeze）之前可变，冻结后任何修改都会 panic。
type ObjectDefinition struct {
	// Type 目标具体类型，通常是 *Struct 的 reflect.Type
	Type reflect.Type
	// TypeName 延迟解析的类型名，与 Type 二选一，
	// 解析时通过 factory 注册的类型表查找
	TypeName string

	Scope  Scope
	Parent string

	// Constructor 显式构造函数，签名为 func(deps...) T 或 func(deps...) (T, error)
	Constructor     any
	ConstructorArgs []ConstructorArg

	Properties []PropertyValue

	// FactoryObject 持有工厂方法的对象定义名，FactoryMethod 为方法名
	FactoryObject string
	FactoryMethod string
	// Factory 外部提供的工厂回调，优先级高于其它实例化方式
	Factory func() (any, error)

	InitMethod    string
	DestroyMethod string

	Autowire AutowireMode
	Role     Role
	// Primary 按类型装配出现多个候选时优先选择
	Primary   bool
	DependsOn []string
	// CacheEligible 为 false 的单例不落入缓存（每次重建），默认 true
	CacheEligible bool

	frozen bool
}

// New 创建给定类型的定义，默认单例、可缓存、不自动装配
func New(typ reflect.Type) *ObjectDefinition {
	return &ObjectDefinition{
		Type:          typ,
		Scope:         ScopeSingleton,
		CacheEligible: true,
	}
}

// NewFor 创建 *T 类型的定义
func NewFor[T any]() *ObjectDefinition {
	return New(reflect.TypeOf((*T)(nil)))
}

// IsSingleton 是否单例作用域
func (d *ObjectDefinition) IsSingleton() bool {
	return d.Scope == "" || d.Scope == ScopeSingleton
}

// IsPrototype 是否原型作用域
func (d *ObjectDefinition) IsPrototype() bool {
	return d.Scope == ScopePrototype
}

// Freeze 冻结定义，此后定义不可再修改
func (d *ObjectDefinition) Freeze() {
	d.frozen = true
}

// Frozen 定义是否已冻结
func (d *ObjectDefinition) Frozen() bool {
	return d.frozen
}

// SetType 替换目标类型，仅允许在冻结前调用。
// 自动代理升级协议依赖这一点：保留注册条目，只改其解析类型。
func (d *ObjectDefinition) SetType(typ reflect.Type) {
	d.checkMutable()
	d.Type = typ
	d.TypeName = ""
}

// AddProperty 追加一条属性赋值
func (d *ObjectDefinition) AddProperty(name string, value any) *ObjectDefinition {
	d.checkMutable()
	d.Properties = append(d.Properties, PropertyValue{Name: name, Value: value})
	return d
}

// AddConstructorArg 追加一个显式构造参数
func (d *ObjectDefinition) AddConstructorArg(index int, value any) *ObjectDefinition {
	d.checkMutable()
	d.ConstructorArgs = append(d.ConstructorArgs, ConstructorArg{Index: index, Value: value})
	return d
}

// Clone 深拷贝定义（切片独立），克隆体未冻结
func (d *ObjectDefinition) Clone() *ObjectDefinition {
	c := *d
	c.frozen = false
	c.ConstructorArgs = append([]ConstructorArg(nil), d.ConstructorArgs...)
	c.Properties = append([]PropertyValue(nil), d.Properties...)
	c.DependsOn = append([]string(nil), d.DependsOn...)
	return &c
}

func (d *ObjectDefinition) checkMutable() {
	if d.frozen {
		panic("definition: 定义已冻结，不允许修改")
	}
}

// mergeFrom 将父定义中未被子定义覆盖的部分并入，用于定义合并阶段
func (d *ObjectDefinition) mergeFrom(parent *ObjectDefinition) {
	if d.Type == nil && d.TypeName == "" {
		d.Type = parent.Type
		d.TypeName = parent.TypeName
	}
	if d.Scope == "" {
		d.Scope = parent.Scope
	}
	if d.Constructor == nil {
		d.Constructor = parent.Constructor
	}
	if len(d.ConstructorArgs) == 0 {
		d.ConstructorArgs = append([]ConstructorArg(nil), parent.ConstructorArgs...)
	}
	if d.FactoryObject == "" && d.FactoryMethod == "" {
		d.FactoryObject = parent.FactoryObject
		d.FactoryMethod = parent.FactoryMethod
	}
	if d.Factory == nil {
		d.Factory = parent.Factory
	}
	if d.InitMethod == "" {
		d.InitMethod = parent.InitMethod
	}
	if d.DestroyMethod == "" {
		d.DestroyMethod = parent.DestroyMethod
	}
	if d.Autowire == AutowireNone {
		d.Autowire = parent.Autowire
	}
	if len(d.DependsOn) == 0 {
		d.DependsOn = append([]string(nil), parent.DependsOn...)
	}

	// 父属性在前，子属性同名覆盖
	merged := append([]PropertyValue(nil), parent.Properties...)
	for _, pv := range d.Properties {
		replaced := false
		for i := range merged {
			if merged[i].Name == pv.Name {
				merged[i] = pv
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, pv)
		}
	}
	d.Properties = merged
}

// Validate 校验定义自身的一致性
func (d *ObjectDefinition) Validate(name string) error {
	if d.Type == nil && d.TypeName == "" && d.Constructor == nil &&
		d.Factory == nil && d.FactoryMethod == "" {
		return &Error{Name: name, Reason: "缺少类型信息：Type、TypeName、Constructor、Factory、FactoryMethod 均未设置"}
	}
	if d.FactoryMethod != "" && d.FactoryObject == "" {
		return &Error{Name: name, Reason: "指定了 FactoryMethod 但缺少 FactoryObject"}
	}
	if len(d.ConstructorArgs) > 0 && d.Constructor == nil && d.FactoryMethod == "" {
		return &Error{Name: name, Reason: "显式构造参数需要 Constructor 或 FactoryMethod"}
	}
	return nil
}

// Error 定义级错误：类型信息缺失或不明确、工厂方法签名不可解析等，
// 属于致命错误，不会重试
type Error struct {
	Name   string
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("definition: 对象 '%s' 定义无效: %s: %v", e.Name, e.Reason, e.Cause)
	}
	return fmt.Sprintf("definition: 对象 '%s' 定义无效: %s", e.Name, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }
