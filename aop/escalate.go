package aop

import (
	"reflect"

	"github.com/gocrud/ioc/definition"
	"github.com/gocrud/ioc/factory"
)

// CreatorName 自动代理参与者在容器内的公认名称
const CreatorName = "aop.internalAutoProxyCreator"

// CreatorVariant 自动代理参与者的能力级别，数值越大能力越强
type CreatorVariant int

const (
	// VariantInfrastructure 仅应用基础设施通知
	VariantInfrastructure CreatorVariant = iota
	// VariantAdvisorMatching 应用容器内全部通知
	VariantAdvisorMatching
	// VariantAspectMatching 额外发现声明式切面
	VariantAspectMatching
)

func (v CreatorVariant) String() string {
	switch v {
	case VariantInfrastructure:
		return "infrastructure"
	case VariantAdvisorMatching:
		return "advisor-matching"
	case VariantAspectMatching:
		return "aspect-matching"
	default:
		return "unknown"
	}
}

var variantTypes = map[CreatorVariant]reflect.Type{
	VariantInfrastructure:  reflect.TypeOf((*InfrastructureCreator)(nil)),
	VariantAdvisorMatching: reflect.TypeOf((*AdvisorMatchingCreator)(nil)),
	VariantAspectMatching:  reflect.TypeOf((*AspectMatchingCreator)(nil)),
}

func variantOf(typ reflect.Type) (CreatorVariant, bool) {
	for v, t := range variantTypes {
		if t == typ {
			return v, true
		}
	}
	return 0, false
}

// RegisterCreatorIfNecessary 注册或升级自动代理参与者。
// 尚未注册时按请求级别注册；已注册时仅当请求级别严格更高才原地
// 替换定义的目标类型，更低或相同级别的请求不产生任何效果。
// 多个装配入口可以各自无条件调用，最终落在最高的请求级别上。
//
// 必须在容器开始创建对象之前完成全部调用。
func RegisterCreatorIfNecessary(f *factory.Factory, variant CreatorVariant, settings CreatorSettings) (*definition.ObjectDefinition, error) {
	reg := f.Registry()

	if reg.Contains(CreatorName) {
		def, err := reg.Get(CreatorName)
		if err != nil {
			return nil, err
		}
		if current, ok := variantOf(def.Type); ok && variant > current {
			def.SetType(variantTypes[variant])
		}
		return def, nil
	}

	def := definition.New(variantTypes[variant])
	def.Role = definition.RoleInfrastructure
	// 工厂回调在调用时读取 def.Type：升级只换类型，不换定义
	def.Factory = func() (any, error) {
		return newCreator(def.Type, f, settings)
	}
	if err := reg.Register(CreatorName, def); err != nil {
		return nil, err
	}
	return def, nil
}

func newCreator(typ reflect.Type, f *factory.Factory, settings CreatorSettings) (any, error) {
	variant, ok := variantOf(typ)
	if !ok {
		return nil, &ConfigError{Reason: "unknown auto-proxy creator type " + typ.String()}
	}
	switch variant {
	case VariantAdvisorMatching:
		return &AdvisorMatchingCreator{creatorBase: newCreatorBase(f, settings, variant)}, nil
	case VariantAspectMatching:
		return &AspectMatchingCreator{creatorBase: newCreatorBase(f, settings, variant)}, nil
	default:
		return &InfrastructureCreator{creatorBase: newCreatorBase(f, settings, variant)}, nil
	}
}
