package ioc

import (
	"fmt"
	"reflect"
)

// Resolve 按类型解析并断言为 T。
// 同类型存在多个候选时遵循首选标记，无法裁决则报错。
func Resolve[T any](c *Container) (T, error) {
	var zero T
	typ := reflect.TypeOf((*T)(nil)).Elem()

	obj, err := c.factory.ResolveType(typ)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("ioc: object of type %T does not satisfy %s", obj, typ)
	}
	return typed, nil
}

// ResolveNamed 按名称解析并断言为 T
func ResolveNamed[T any](c *Container, name string) (T, error) {
	var zero T

	obj, err := c.factory.Resolve(name)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("ioc: object %q of type %T does not satisfy %s", name, obj, reflect.TypeOf((*T)(nil)).Elem())
	}
	return typed, nil
}

// MustResolve 按类型解析，失败即 panic，适合组装阶段使用
func MustResolve[T any](c *Container) T {
	obj, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return obj
}
