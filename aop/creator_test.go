package aop_test

import (
	"reflect"
	"testing"

	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/definition"
	"github.com/gocrud/ioc/factory"
)

func newFactory() (*definition.Registry, *factory.Factory) {
	reg := definition.NewRegistry()
	return reg, factory.New(reg)
}

func TestRegisterCreatorEscalation(t *testing.T) {
	_, f := newFactory()

	def, err := aop.RegisterCreatorIfNecessary(f, aop.VariantInfrastructure, aop.CreatorSettings{})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if !f.Registry().Contains(aop.CreatorName) {
		t.Fatal("creator definition should be registered under the well-known name")
	}
	infraType := def.Type

	// 更高级别的请求原地升级同一条定义
	again, err := aop.RegisterCreatorIfNecessary(f, aop.VariantAspectMatching, aop.CreatorSettings{})
	if err != nil {
		t.Fatal(err)
	}
	if again != def {
		t.Error("escalation must reuse the existing definition")
	}
	if def.Type == infraType {
		t.Error("escalation should replace the definition type")
	}
	aspectType := def.Type

	// 更低或相同级别的请求不产生任何效果
	if _, err := aop.RegisterCreatorIfNecessary(f, aop.VariantAdvisorMatching, aop.CreatorSettings{}); err != nil {
		t.Fatal(err)
	}
	if def.Type != aspectType {
		t.Error("a lower-priority request must be a no-op")
	}

	obj, err := f.Resolve(aop.CreatorName)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, ok := obj.(*aop.AspectMatchingCreator); !ok {
		t.Errorf("factory callback should honor the escalated type, got %T", obj)
	}
}

func TestCreatorVariantOrdering(t *testing.T) {
	if !(aop.VariantInfrastructure < aop.VariantAdvisorMatching &&
		aop.VariantAdvisorMatching < aop.VariantAspectMatching) {
		t.Error("variant priorities must ascend")
	}
}

func registerGreetTarget(t *testing.T, reg *definition.Registry) {
	t.Helper()
	def := definition.NewFor[GreetService]()
	def.AddProperty("Prefix", "hi ")
	if err := reg.Register("greeter", def); err != nil {
		t.Fatal(err)
	}
}

func upperAdvisor(infrastructure bool) *definition.ObjectDefinition {
	def := definition.NewFor[aop.Advisor]()
	def.Role = definition.RoleInfrastructure
	def.Factory = func() (any, error) {
		return &aop.Advisor{
			Name: "upper",
			Interceptor: aop.InterceptorFunc(func(inv *aop.Invocation) ([]any, error) {
				out, err := inv.Proceed()
				if err == nil {
					if s, ok := out[0].(string); ok {
						out[0] = s + "!"
					}
				}
				return out, err
			}),
			TypeMatches: func(typ reflect.Type) bool {
				return typ.Implements(greeterType)
			},
			Interfaces:     []reflect.Type{greeterType},
			Infrastructure: infrastructure,
		}, nil
	}
	return def
}

func TestAutoProxyWrapsMatchingObjects(t *testing.T) {
	reg, f := newFactory()
	registerGreetTarget(t, reg)
	if err := reg.Register("upperAdvisor", upperAdvisor(false)); err != nil {
		t.Fatal(err)
	}
	if _, err := aop.RegisterCreatorIfNecessary(f, aop.VariantAdvisorMatching, aop.CreatorSettings{}); err != nil {
		t.Fatal(err)
	}

	if err := f.PreInstantiateSingletons(); err != nil {
		t.Fatalf("PreInstantiateSingletons failed: %v", err)
	}

	obj, err := f.Resolve("greeter")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	proxy, ok := obj.(aop.Proxy)
	if !ok {
		t.Fatalf("expected a proxy, got %T", obj)
	}

	out, err := proxy.Call("Greet", "bob")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if out[0] != "hi bob!" {
		t.Errorf("Expected 'hi bob!', got %v", out[0])
	}
	if proxy.ProxyStrategy() != aop.StrategyInterface {
		t.Errorf("advisor-declared interfaces should yield an interface proxy, got %v", proxy.ProxyStrategy())
	}
}

func TestInfrastructureCreatorIgnoresPlainAdvisors(t *testing.T) {
	reg, f := newFactory()
	registerGreetTarget(t, reg)
	if err := reg.Register("upperAdvisor", upperAdvisor(false)); err != nil {
		t.Fatal(err)
	}
	if _, err := aop.RegisterCreatorIfNecessary(f, aop.VariantInfrastructure, aop.CreatorSettings{}); err != nil {
		t.Fatal(err)
	}

	if err := f.PreInstantiateSingletons(); err != nil {
		t.Fatal(err)
	}

	obj, err := f.Resolve("greeter")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := obj.(aop.Proxy); ok {
		t.Error("the infrastructure-level creator must ignore non-infrastructure advisors")
	}
}

func TestInfrastructureCreatorAppliesInfrastructureAdvisors(t *testing.T) {
	reg, f := newFactory()
	registerGreetTarget(t, reg)
	if err := reg.Register("upperAdvisor", upperAdvisor(true)); err != nil {
		t.Fatal(err)
	}
	if _, err := aop.RegisterCreatorIfNecessary(f, aop.VariantInfrastructure, aop.CreatorSettings{}); err != nil {
		t.Fatal(err)
	}

	if err := f.PreInstantiateSingletons(); err != nil {
		t.Fatal(err)
	}

	obj, err := f.Resolve("greeter")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := obj.(aop.Proxy); !ok {
		t.Errorf("infrastructure advisors should be applied, got %T", obj)
	}
}

// loudAspect 声明式切面，只有 Aspect 匹配级的参与者会发现它
type loudAspect struct{}

func (a *loudAspect) Advisors() []*aop.Advisor {
	return []*aop.Advisor{{
		Name: "loud",
		Interceptor: aop.InterceptorFunc(func(inv *aop.Invocation) ([]any, error) {
			out, err := inv.Proceed()
			if err == nil {
				if s, ok := out[0].(string); ok {
					out[0] = "<" + s + ">"
				}
			}
			return out, err
		}),
		TypeMatches: func(typ reflect.Type) bool {
			return typ.Implements(greeterType)
		},
		Interfaces: []reflect.Type{greeterType},
	}}
}

func TestAspectMatchingCreatorDiscoversAspects(t *testing.T) {
	reg, f := newFactory()
	registerGreetTarget(t, reg)
	if err := reg.Register("loudAspect", definition.NewFor[loudAspect]()); err != nil {
		t.Fatal(err)
	}
	if _, err := aop.RegisterCreatorIfNecessary(f, aop.VariantAspectMatching, aop.CreatorSettings{}); err != nil {
		t.Fatal(err)
	}

	if err := f.PreInstantiateSingletons(); err != nil {
		t.Fatal(err)
	}

	obj, err := f.Resolve("greeter")
	if err != nil {
		t.Fatal(err)
	}
	proxy, ok := obj.(aop.Proxy)
	if !ok {
		t.Fatalf("expected a proxy, got %T", obj)
	}
	out, err := proxy.Call("Greet", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != "<hi bob>" {
		t.Errorf("Expected '<hi bob>', got %v", out[0])
	}
}

func TestAutoProxyCycleConsistency(t *testing.T) {
	reg, f := newFactory()

	// greeter 与 holder 互相引用，greeter 会被代理：
	// holder 经早期引用拿到的必须与最终暴露的是同一个代理
	g := definition.NewFor[GreetService]()
	g.AddProperty("Prefix", "hi ")
	g.AddProperty("Holder", definition.Ref{Name: "holder"})
	if err := reg.Register("greeter", g); err != nil {
		t.Fatal(err)
	}

	h := definition.NewFor[Holder]()
	h.AddProperty("Greeter", definition.Ref{Name: "greeter"})
	if err := reg.Register("holder", h); err != nil {
		t.Fatal(err)
	}

	if err := reg.Register("upperAdvisor", upperAdvisor(false)); err != nil {
		t.Fatal(err)
	}
	if _, err := aop.RegisterCreatorIfNecessary(f, aop.VariantAdvisorMatching, aop.CreatorSettings{}); err != nil {
		t.Fatal(err)
	}

	if err := f.PreInstantiateSingletons(); err != nil {
		t.Fatalf("PreInstantiateSingletons failed: %v", err)
	}

	gObj, err := f.Resolve("greeter")
	if err != nil {
		t.Fatal(err)
	}
	hObj, err := f.Resolve("holder")
	if err != nil {
		t.Fatal(err)
	}
	if hObj.(*Holder).Greeter != gObj {
		t.Error("the dependent must hold the same proxy the container exposes")
	}
}
