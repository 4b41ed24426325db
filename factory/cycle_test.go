package factory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/gocrud/ioc/definition"
	"github.com/gocrud/ioc/factory"
)

type NodeA struct {
	Peer *NodeB
}

type NodeB struct {
	Peer *NodeA
}

func registerCycle(reg *definition.Registry) {
	a := definition.NewFor[NodeA]()
	a.AddProperty("Peer", definition.Ref{Name: "b"})
	reg.Register("a", a)

	b := definition.NewFor[NodeB]()
	b.AddProperty("Peer", definition.Ref{Name: "a"})
	reg.Register("b", b)
}

func TestSetterCycleResolves(t *testing.T) {
	reg, f := newFactory()
	registerCycle(reg)

	obj, err := f.Resolve("a")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	a := obj.(*NodeA)
	if a.Peer == nil || a.Peer.Peer == nil {
		t.Fatal("cycle was not wired")
	}
	if a.Peer.Peer != a {
		t.Error("b should hold the very same a instance")
	}

	// 两个名字都落入缓存，后续解析返回同一对
	bObj, err := f.Resolve("b")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if bObj.(*NodeB) != a.Peer {
		t.Error("b resolved separately should be the cached instance")
	}
}

func TestSetterCycleDisallowed(t *testing.T) {
	reg, f := newFactory(factory.DisallowCircularReferences())
	registerCycle(reg)

	_, err := f.Resolve("a")
	var cycle *factory.CircularConstructionError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CircularConstructionError, got %v", err)
	}
}

func TestConstructorCycleFails(t *testing.T) {
	reg, f := newFactory()

	a := definition.NewFor[NodeA]()
	a.Constructor = func(b *NodeB) *NodeA { return &NodeA{Peer: b} }
	reg.Register("a", a)

	b := definition.NewFor[NodeB]()
	b.Constructor = func(a *NodeA) *NodeB { return &NodeB{Peer: a} }
	reg.Register("b", b)

	_, err := f.Resolve("a")
	var cycle *factory.CircularConstructionError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CircularConstructionError, got %v", err)
	}
	if len(cycle.Cycle) < 2 {
		t.Errorf("cycle path should name the participants, got %v", cycle.Cycle)
	}

	// 失败后缓存保持干净，单独解析 b 依旧失败但不 panic
	if _, err := f.Resolve("b"); err == nil {
		t.Error("resolving the other cycle member should also fail")
	}
}

func TestPrototypeCycleFails(t *testing.T) {
	reg, f := newFactory()

	a := definition.NewFor[NodeA]()
	a.Scope = definition.ScopePrototype
	a.AddProperty("Peer", definition.Ref{Name: "b"})
	reg.Register("a", a)

	b := definition.NewFor[NodeB]()
	b.Scope = definition.ScopePrototype
	b.AddProperty("Peer", definition.Ref{Name: "a"})
	reg.Register("b", b)

	// 原型没有早期引用可用，环必然失败
	_, err := f.Resolve("a")
	var cycle *factory.CircularConstructionError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CircularConstructionError, got %v", err)
	}
}

// wrappingProcessor 在 after-initialization 阶段把指定对象换成包装体
type wrappingProcessor struct {
	target string
}

func (p *wrappingProcessor) Name() string { return "test.wrapper" }

func (p *wrappingProcessor) BeforeInit(name string, obj any) (any, error) { return nil, nil }

func (p *wrappingProcessor) AfterInit(name string, obj any) (any, error) {
	if name == p.target {
		return &wrapped{inner: obj}, nil
	}
	return nil, nil
}

type wrapped struct {
	inner any
}

func TestRawReferenceLeaked(t *testing.T) {
	reg, f := newFactory()
	registerCycle(reg)
	f.AddPostProcessor(&wrappingProcessor{target: "a"})

	_, err := f.Resolve("a")
	var leaked *factory.RawReferenceLeakedError
	if !errors.As(err, &leaked) {
		t.Fatalf("expected RawReferenceLeakedError, got %v", err)
	}
	if leaked.Name != "a" {
		t.Errorf("Expected leaked name 'a', got '%s'", leaked.Name)
	}
	if len(leaked.Dependents) != 1 || leaked.Dependents[0] != "b" {
		t.Errorf("Expected dependents [b], got %v", leaked.Dependents)
	}
}

func TestRawInjectionFallback(t *testing.T) {
	reg, f := newFactory(factory.AllowRawInjection())
	registerCycle(reg)
	f.AddPostProcessor(&wrappingProcessor{target: "a"})

	obj, err := f.Resolve("a")
	if err != nil {
		t.Fatalf("Resolve with AllowRawInjection failed: %v", err)
	}
	w, ok := obj.(*wrapped)
	if !ok {
		t.Fatalf("Expected wrapped object, got %T", obj)
	}

	// 依赖方保留原始引用
	bObj, err := f.Resolve("b")
	if err != nil {
		t.Fatal(err)
	}
	if bObj.(*NodeB).Peer != w.inner.(*NodeA) {
		t.Error("dependent should keep the raw reference under the fallback")
	}
}

// reentrantProcessor 在 after-initialization 阶段回头解析另一个
// 创建中的名称，自动代理参与者在钩子里查找通知走的正是这条路
type reentrantProcessor struct {
	f      *factory.Factory
	target string
	lookup string
	got    any
	err    error
}

func (p *reentrantProcessor) Name() string { return "test.reentrant" }

func (p *reentrantProcessor) BeforeInit(name string, obj any) (any, error) { return nil, nil }

func (p *reentrantProcessor) AfterInit(name string, obj any) (any, error) {
	if name == p.target {
		p.got, p.err = p.f.Resolve(p.lookup)
	}
	return nil, nil
}

func TestHookReentryExposesInCreationName(t *testing.T) {
	reg, f := newFactory()

	a := definition.NewFor[NodeA]()
	a.AddProperty("Peer", definition.Ref{Name: "b"})
	reg.Register("a", a)
	reg.Register("b", definition.NewFor[NodeB]())

	proc := &reentrantProcessor{f: f, target: "b", lookup: "a"}
	f.AddPostProcessor(proc)

	// b 初始化时 a 仍在创建中，钩子发起的解析必须立即
	// 拿到早期引用而不是等待本链自己结束
	done := make(chan any, 1)
	go func() {
		obj, err := f.Resolve("a")
		if err != nil {
			done <- err
			return
		}
		done <- obj
	}()

	var obj any
	select {
	case obj = <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("resolving a name whose hook re-enters the factory must not block")
	}
	if err, ok := obj.(error); ok {
		t.Fatalf("Resolve failed: %v", err)
	}

	if proc.err != nil {
		t.Fatalf("hook-initiated Resolve failed: %v", proc.err)
	}
	if proc.got != obj {
		t.Error("hook should capture the very same instance the caller gets")
	}
}

// earlyWrappingProcessor 早期引用阶段就做包装，并保证
// after-initialization 不二次包装，维持引用同一性
type earlyWrappingProcessor struct {
	target       string
	earlyProxied map[string]bool
}

func (p *earlyWrappingProcessor) Name() string { return "test.earlyWrapper" }

func (p *earlyWrappingProcessor) EarlyReference(name string, obj any) any {
	if name != p.target {
		return nil
	}
	p.earlyProxied[name] = true
	return &NodeA{Peer: obj.(*NodeA).Peer}
}

func (p *earlyWrappingProcessor) BeforeInit(name string, obj any) (any, error) { return nil, nil }

func (p *earlyWrappingProcessor) AfterInit(name string, obj any) (any, error) {
	if p.earlyProxied[name] {
		return nil, nil
	}
	return nil, nil
}

func TestEarlyReferenceConsistency(t *testing.T) {
	reg, f := newFactory()
	registerCycle(reg)
	proc := &earlyWrappingProcessor{target: "a", earlyProxied: make(map[string]bool)}
	f.AddPostProcessor(proc)

	obj, err := f.Resolve("a")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	a := obj.(*NodeA)

	bObj, err := f.Resolve("b")
	if err != nil {
		t.Fatal(err)
	}
	// 依赖方捕获的早期引用必须与最终暴露的是同一个对象
	if bObj.(*NodeB).Peer != a {
		t.Error("final object must be the early reference the dependent captured")
	}
	if !proc.earlyProxied["a"] {
		t.Error("early reference hook should have run")
	}
}
