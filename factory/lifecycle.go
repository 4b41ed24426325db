package factory

import (
	"fmt"
	"reflect"
)

// Initializable 属性填充与 before-initialization 钩子之后调用
type Initializable interface {
	Init() error
}

// Disposable 容器关闭时调用，与定义上的 DestroyMethod 二选一或并存
type Disposable interface {
	Destroy() error
}

// EventListener 事件订阅者。实现此接口的单例在创建完成后
// 被内置探测器编入索引，可通过 Factory.Publish 收到事件。
type EventListener interface {
	OnEvent(event any)
}

// listenerDetectorName 内置探测器的注册名
const listenerDetectorName = "internal.listenerDetector"

// listenerDetector 事件订阅者探测器。
// 固定运行在 after-initialization 钩子的最后，
// 保证索引到的是其它处理器（含代理包装）处理完的最终对象。
type listenerDetector struct {
	factory *Factory
}

func (d *listenerDetector) Name() string { return listenerDetectorName }

func (d *listenerDetector) BeforeInit(name string, obj any) (any, error) {
	return nil, nil
}

func (d *listenerDetector) AfterInit(name string, obj any) (any, error) {
	if listener, ok := obj.(EventListener); ok {
		d.factory.indexListener(name, listener)
	}
	return nil, nil
}

// invokeInit 调用 Initializable.Init 以及定义上的 InitMethod
func invokeInit(name string, obj any, initMethod string) error {
	if init, ok := obj.(Initializable); ok {
		if err := init.Init(); err != nil {
			return &InitializationError{Name: name, Cause: err}
		}
	}
	if initMethod != "" {
		if err := invokeNamedMethod(obj, initMethod); err != nil {
			return &InitializationError{Name: name, Cause: err}
		}
	}
	return nil
}

// destroyFunc 构造销毁回调，无需销毁时返回 nil
func destroyFunc(obj any, destroyMethod string) func() error {
	disp, isDisposable := obj.(Disposable)
	if !isDisposable && destroyMethod == "" {
		return nil
	}
	return func() error {
		if isDisposable {
			if err := disp.Destroy(); err != nil {
				return err
			}
		}
		if destroyMethod != "" {
			return invokeNamedMethod(obj, destroyMethod)
		}
		return nil
	}
}

// invokeNamedMethod 反射调用无参方法，可选 error 返回值
func invokeNamedMethod(obj any, method string) error {
	m := reflect.ValueOf(obj).MethodByName(method)
	if !m.IsValid() {
		return fmt.Errorf("方法 '%s' 不存在于 %T", method, obj)
	}
	if m.Type().NumIn() != 0 {
		return fmt.Errorf("方法 '%s' 必须无参", method)
	}
	results := m.Call(nil)
	for _, r := range results {
		if err, ok := r.Interface().(error); ok && err != nil {
			return err
		}
	}
	return nil
}
