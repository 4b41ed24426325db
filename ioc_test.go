package ioc_test

import (
	"context"
	"reflect"
	"testing"

	ioc "github.com/gocrud/ioc"
	"github.com/gocrud/ioc/aop"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/definition"
)

type Repository struct {
	DSN string
}

type OrderService struct {
	Repository *Repository
}

func (s *OrderService) Place(id string) string {
	return "order:" + id
}

func TestContainerEndToEnd(t *testing.T) {
	cfg, err := config.NewBuilder().
		AddInMemory(map[string]any{
			"db": map[string]any{"dsn": "file:orders.db"},
		}).
		Build()
	if err != nil {
		t.Fatal(err)
	}

	c, err := ioc.New(ioc.WithConfiguration(cfg))
	if err != nil {
		t.Fatal(err)
	}

	repo := definition.NewFor[Repository]()
	repo.AddProperty("DSN", definition.Expr{Expression: "${db.dsn}"})
	if err := c.Register("repository", repo); err != nil {
		t.Fatal(err)
	}

	svc := definition.NewFor[OrderService]()
	svc.Autowire = definition.AutowireByName
	if err := c.Register("orderService", svc); err != nil {
		t.Fatal(err)
	}

	if err := c.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	service, err := ioc.ResolveNamed[*OrderService](c, "orderService")
	if err != nil {
		t.Fatalf("ResolveNamed failed: %v", err)
	}
	if service.Repository == nil {
		t.Fatal("repository was not autowired")
	}
	if service.Repository.DSN != "file:orders.db" {
		t.Errorf("Expected DSN from configuration, got '%s'", service.Repository.DSN)
	}

	byType, err := ioc.Resolve[*OrderService](c)
	if err != nil {
		t.Fatalf("Resolve by type failed: %v", err)
	}
	if byType != service {
		t.Error("type-based resolution should hit the same singleton")
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestResolveTypeAssertionFailure(t *testing.T) {
	c, err := ioc.New()
	if err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterSingleton("repo", &Repository{}); err != nil {
		t.Fatal(err)
	}

	if _, err := ioc.ResolveNamed[*OrderService](c, "repo"); err == nil {
		t.Error("resolving under the wrong type parameter should fail")
	}
}

func TestContainerAutoProxy(t *testing.T) {
	c, err := ioc.New(ioc.WithAutoProxy(aop.VariantAdvisorMatching, aop.CreatorSettings{}))
	if err != nil {
		t.Fatal(err)
	}

	svc := definition.NewFor[OrderService]()
	if err := c.Register("orderService", svc); err != nil {
		t.Fatal(err)
	}

	advisor := definition.NewFor[aop.Advisor]()
	advisor.Role = definition.RoleInfrastructure
	advisor.Factory = func() (any, error) {
		return &aop.Advisor{
			Name: "audit",
			Interceptor: aop.InterceptorFunc(func(inv *aop.Invocation) ([]any, error) {
				out, err := inv.Proceed()
				if err == nil {
					out[0] = out[0].(string) + " (audited)"
				}
				return out, err
			}),
			TypeMatches: func(typ reflect.Type) bool {
				return typ == reflect.TypeOf((*OrderService)(nil))
			},
		}, nil
	}
	if err := c.Register("auditAdvisor", advisor); err != nil {
		t.Fatal(err)
	}

	if err := c.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	obj, err := c.Resolve("orderService")
	if err != nil {
		t.Fatal(err)
	}
	proxy, ok := obj.(aop.Proxy)
	if !ok {
		t.Fatalf("expected the service to be proxied, got %T", obj)
	}

	out, err := proxy.Call("Place", "42")
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if out[0] != "order:42 (audited)" {
		t.Errorf("Expected audited result, got %v", out[0])
	}
}

func TestMustResolvePanics(t *testing.T) {
	c, err := ioc.New()
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustResolve should panic when nothing matches")
		}
	}()
	ioc.MustResolve[*Repository](c)
}
