package aop_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/gocrud/ioc/aop"
)

type Greeter interface {
	Greet(name string) string
}

type Marker interface{}

type GreetService struct {
	Prefix string
	Holder *Holder
}

type Holder struct {
	Greeter aop.Proxy
}

func (s *GreetService) Greet(name string) string {
	return s.Prefix + name
}

func (s *GreetService) Internal() string {
	return "internal"
}

var greeterType = reflect.TypeOf((*Greeter)(nil)).Elem()
var markerType = reflect.TypeOf((*Marker)(nil)).Elem()

func TestSelectStrategyDecisionTable(t *testing.T) {
	target := &GreetService{}

	cases := []struct {
		name    string
		cfg     *aop.Config
		want    aop.Strategy
		wantErr bool
	}{
		{
			name: "interfaces available",
			cfg:  &aop.Config{Target: target, Interfaces: []reflect.Type{greeterType}},
			want: aop.StrategyInterface,
		},
		{
			name: "proxy-target-class forces class proxy",
			cfg:  &aop.Config{Target: target, Interfaces: []reflect.Type{greeterType}, ProxyTargetClass: true},
			want: aop.StrategyClass,
		},
		{
			name: "optimize forces class proxy",
			cfg:  &aop.Config{Target: target, Interfaces: []reflect.Type{greeterType}, Optimize: true},
			want: aop.StrategyClass,
		},
		{
			name: "no interfaces falls back to class proxy",
			cfg:  &aop.Config{Target: target},
			want: aop.StrategyClass,
		},
		{
			name: "marker interfaces do not count",
			cfg:  &aop.Config{Target: target, Interfaces: []reflect.Type{markerType}},
			want: aop.StrategyClass,
		},
		{
			name:    "class proxy needs a concrete type",
			cfg:     &aop.Config{Target: target, TargetType: greeterType, ProxyTargetClass: true},
			wantErr: true,
		},
		{
			name:    "no target type at all",
			cfg:     &aop.Config{},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := aop.SelectStrategy(tc.cfg)
			if tc.wantErr {
				var cfgErr *aop.ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ConfigError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectStrategy failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestProxyOfProxyFlattens(t *testing.T) {
	inner, err := aop.CreateProxy(&aop.Config{
		Target:     &GreetService{},
		Interfaces: []reflect.Type{greeterType},
	})
	if err != nil {
		t.Fatal(err)
	}

	// 对代理再代理，即使要求类代理也降回接口族
	strategy, err := aop.SelectStrategy(&aop.Config{Target: inner, ProxyTargetClass: true})
	if err != nil {
		t.Fatalf("SelectStrategy failed: %v", err)
	}
	if strategy != aop.StrategyInterface {
		t.Errorf("proxying a proxy should select the interface strategy, got %v", strategy)
	}

	outer, err := aop.CreateProxy(&aop.Config{Target: inner, ProxyTargetClass: true})
	if err != nil {
		t.Fatal(err)
	}
	if outer.TargetType() != reflect.TypeOf(&GreetService{}) {
		t.Error("outer proxy should report the original target type")
	}

	out, err := outer.Call("Greet", "x")
	if err != nil {
		t.Fatalf("Call through nested proxy failed: %v", err)
	}
	if out[0] != "x" {
		t.Errorf("Expected 'x', got %v", out[0])
	}
}

func TestInterfaceProxyMethodSet(t *testing.T) {
	proxy, err := aop.CreateProxy(&aop.Config{
		Target:     &GreetService{Prefix: "hi "},
		Interfaces: []reflect.Type{greeterType},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := proxy.Call("Greet", "bob")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if out[0] != "hi bob" {
		t.Errorf("Expected 'hi bob', got %v", out[0])
	}

	// 接口之外的方法不暴露
	if _, err := proxy.Call("Internal"); err == nil {
		t.Error("methods outside the declared interfaces must not be callable")
	}
	if proxy.ProxyStrategy() != aop.StrategyInterface {
		t.Errorf("Expected interface strategy, got %v", proxy.ProxyStrategy())
	}
}

func TestClassProxyMethodSet(t *testing.T) {
	proxy, err := aop.CreateProxy(&aop.Config{Target: &GreetService{Prefix: "hi "}})
	if err != nil {
		t.Fatal(err)
	}

	// 类代理暴露全部导出方法
	if _, err := proxy.Call("Internal"); err != nil {
		t.Errorf("class proxy should expose all exported methods: %v", err)
	}
	if proxy.ProxyStrategy() != aop.StrategyClass {
		t.Errorf("Expected class strategy, got %v", proxy.ProxyStrategy())
	}
	if proxy.Unwrap().(*GreetService).Prefix != "hi " {
		t.Error("Unwrap should return the original target")
	}
}

func TestUnimplementedInterfaceRejected(t *testing.T) {
	type Other interface{ Other() }
	_, err := aop.CreateProxy(&aop.Config{
		Target:     &GreetService{},
		Interfaces: []reflect.Type{reflect.TypeOf((*Other)(nil)).Elem()},
	})
	var cfgErr *aop.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestInterceptorChain(t *testing.T) {
	var trace []string

	first := aop.InterceptorFunc(func(inv *aop.Invocation) ([]any, error) {
		trace = append(trace, "first-in")
		out, err := inv.Proceed()
		trace = append(trace, "first-out")
		return out, err
	})
	second := aop.InterceptorFunc(func(inv *aop.Invocation) ([]any, error) {
		trace = append(trace, "second-in")
		out, err := inv.Proceed()
		if err == nil {
			out[0] = strings.ToUpper(out[0].(string))
		}
		trace = append(trace, "second-out")
		return out, err
	})

	proxy, err := aop.CreateProxy(&aop.Config{
		Target:       &GreetService{Prefix: "hi "},
		Interfaces:   []reflect.Type{greeterType},
		Interceptors: []aop.Interceptor{first, second},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := proxy.Call("Greet", "bob")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if out[0] != "HI BOB" {
		t.Errorf("Expected 'HI BOB', got %v", out[0])
	}

	want := []string{"first-in", "second-in", "second-out", "first-out"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("Expected trace %v, got %v", want, trace)
	}
}

func TestInterceptorShortCircuit(t *testing.T) {
	skip := aop.InterceptorFunc(func(inv *aop.Invocation) ([]any, error) {
		return []any{"blocked"}, nil
	})

	proxy, err := aop.CreateProxy(&aop.Config{
		Target:       &GreetService{Prefix: "hi "},
		Interfaces:   []reflect.Type{greeterType},
		Interceptors: []aop.Interceptor{skip},
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := proxy.Call("Greet", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != "blocked" {
		t.Errorf("interceptor should be able to short-circuit the target, got %v", out[0])
	}
}

func TestCallArgumentValidation(t *testing.T) {
	proxy, err := aop.CreateProxy(&aop.Config{
		Target:     &GreetService{},
		Interfaces: []reflect.Type{greeterType},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := proxy.Call("Greet"); err == nil {
		t.Error("wrong arity should be rejected")
	}
	if _, err := proxy.Call("Greet", 42); err == nil {
		t.Error("wrong argument type should be rejected")
	}
}
