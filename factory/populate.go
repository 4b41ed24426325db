package factory

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gocrud/ioc/definition"
)

// populate 属性填充：after-instantiation 否决 -> 自动装配补充 ->
// property-values 钩子重写 -> 实际赋值
func (f *Factory) populate(ctx *creationContext, name string, def *definition.ObjectDefinition, raw any) error {
	cont, err := f.pipeline.applyAfterInstantiation(name, raw)
	if err != nil {
		return err
	}
	if !cont {
		// 处理器自行负责字段填充
		return nil
	}

	props := append([]definition.PropertyValue(nil), def.Properties...)

	switch def.Autowire {
	case definition.AutowireByName:
		props = f.autowireByName(raw, props)
	case definition.AutowireByType:
		extra, err := f.autowireByType(name, raw, props)
		if err != nil {
			return err
		}
		props = append(props, extra...)
	}

	props, doPopulate, err := f.pipeline.applyProperties(name, raw, props)
	if err != nil {
		return err
	}
	if !doPopulate {
		return nil
	}

	return f.applyPropertyValues(ctx, name, raw, props)
}

// autowireByName 对每个未显式赋值、可写且非简单类型的属性，
// 在注册表中查找同名定义。查不到的名字静默跳过，这不是错误。
func (f *Factory) autowireByName(raw any, props []definition.PropertyValue) []definition.PropertyValue {
	for _, field := range candidateFields(raw, props) {
		propName := lowerFirst(field.Name)
		if !f.registry.Contains(propName) {
			continue
		}
		props = append(props, definition.PropertyValue{
			Name:  field.Name,
			Value: definition.Ref{Name: propName},
		})
	}
	return props
}

// autowireByType 候选属性发现同 byName；对集合属性注入全部匹配者，
// 单值属性出现多个无 Primary 的候选时报 UnsatisfiedDependencyError。
// 无约束的 any 类型属性从不装配。
func (f *Factory) autowireByType(name string, raw any, props []definition.PropertyValue) ([]definition.PropertyValue, error) {
	var extra []definition.PropertyValue

	for _, field := range candidateFields(raw, props) {
		fieldType := field.Type

		// interface{} 属性永不按类型装配
		if fieldType.Kind() == reflect.Interface && fieldType.NumMethod() == 0 {
			continue
		}

		switch fieldType.Kind() {
		case reflect.Slice:
			elems := f.NamesForType(fieldType.Elem())
			if len(elems) == 0 {
				continue
			}
			refs := make([]any, len(elems))
			for i, n := range elems {
				refs[i] = definition.Ref{Name: n}
			}
			extra = append(extra, definition.PropertyValue{Name: field.Name, Value: refs})

		case reflect.Map:
			if fieldType.Key().Kind() != reflect.String {
				continue
			}
			elems := f.NamesForType(fieldType.Elem())
			if len(elems) == 0 {
				continue
			}
			refs := make(map[string]any, len(elems))
			for _, n := range elems {
				refs[n] = definition.Ref{Name: n}
			}
			extra = append(extra, definition.PropertyValue{Name: field.Name, Value: refs})

		default:
			candidates := f.NamesForType(fieldType)
			switch len(candidates) {
			case 0:
				continue
			case 1:
				extra = append(extra, definition.PropertyValue{Name: field.Name, Value: definition.Ref{Name: candidates[0]}})
			default:
				if primary, ok := f.primaryOf(candidates); ok {
					extra = append(extra, definition.PropertyValue{Name: field.Name, Value: definition.Ref{Name: primary}})
					continue
				}
				return nil, &UnsatisfiedDependencyError{
					Name: name, Dependency: field.Name,
					Reason: fmt.Sprintf("按类型装配匹配到多个候选 %v 且无 Primary", candidates),
				}
			}
		}
	}
	return extra, nil
}

// applyPropertyValues 把解析后的属性值逐个写入字段
func (f *Factory) applyPropertyValues(ctx *creationContext, name string, raw any, props []definition.PropertyValue) error {
	target := reflect.ValueOf(raw)
	if target.Kind() != reflect.Ptr || target.Elem().Kind() != reflect.Struct {
		if len(props) == 0 {
			return nil
		}
		return &UnsatisfiedDependencyError{
			Name: name, Dependency: props[0].Name,
			Reason: fmt.Sprintf("%T 不是结构体指针，无法填充属性", raw),
		}
	}
	structVal := target.Elem()

	for _, pv := range props {
		field := structVal.FieldByName(upperFirst(pv.Name))
		if !field.IsValid() {
			field = structVal.FieldByName(pv.Name)
		}
		if !field.IsValid() || !field.CanSet() {
			return &UnsatisfiedDependencyError{
				Name: name, Dependency: pv.Name,
				Reason: fmt.Sprintf("类型 %v 上没有可写属性", structVal.Type()),
			}
		}

		value, err := f.resolveValueSpec(ctx, name, pv.Value)
		if err != nil {
			return err
		}

		converted, err := convertValue(value, field.Type())
		if err != nil {
			return &UnsatisfiedDependencyError{Name: name, Dependency: pv.Name, Reason: "类型不匹配", Cause: err}
		}
		field.Set(converted)
	}
	return nil
}

// resolveValueSpec 求值属性/参数规格：
// Ref 递归解析并登记依赖边，Expr 交给 ValueResolver，
// 集合逐元素求值，其余按字面量使用
func (f *Factory) resolveValueSpec(ctx *creationContext, name string, spec any) (any, error) {
	switch v := spec.(type) {
	case definition.Ref:
		canonical := f.registry.Canonical(v.Name)
		f.cache.registerDependent(canonical, name)
		obj, err := f.doResolve(ctx, v.Name, nil)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Name: name, Dependency: v.Name, Reason: "引用解析失败", Cause: err}
		}
		return obj, nil

	case definition.Expr:
		if f.valueResolver == nil {
			return nil, &UnsatisfiedDependencyError{
				Name: name, Dependency: v.Expression,
				Reason: "未配置 ValueResolver，无法求值表达式",
			}
		}
		out, err := f.valueResolver.Resolve(v.Expression)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Name: name, Dependency: v.Expression, Reason: "表达式求值失败", Cause: err}
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			resolved, err := f.resolveValueSpec(ctx, name, elem)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil

	case map[string]any:
		out := make(map[string]any, len(v))
		for key, elem := range v {
			resolved, err := f.resolveValueSpec(ctx, name, elem)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil

	default:
		return spec, nil
	}
}

// candidateFields 自动装配的候选属性：导出、可写、当前为零值、
// 未被显式属性覆盖、且不是简单值类型
func candidateFields(raw any, explicit []definition.PropertyValue) []reflect.StructField {
	target := reflect.ValueOf(raw)
	if target.Kind() != reflect.Ptr || target.Elem().Kind() != reflect.Struct {
		return nil
	}
	structVal := target.Elem()
	structType := structVal.Type()

	covered := make(map[string]bool, len(explicit))
	for _, pv := range explicit {
		covered[upperFirst(pv.Name)] = true
	}

	var fields []reflect.StructField
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() || covered[field.Name] {
			continue
		}
		if !structVal.Field(i).CanSet() || !structVal.Field(i).IsZero() {
			continue
		}
		if simpleType(field.Type) {
			continue
		}
		fields = append(fields, field)
	}
	return fields
}

// simpleType 字符串、数字、布尔、时间等平凡类型不参与自动装配
func simpleType(typ reflect.Type) bool {
	switch typ.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	if typ == reflect.TypeOf(time.Duration(0)) || typ == reflect.TypeOf(time.Time{}) {
		return true
	}
	return false
}

// convertValue 把任意值转换为目标类型的 reflect.Value
func convertValue(value any, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}

	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(target) {
		return v, nil
	}
	if v.Type().ConvertibleTo(target) && compatibleKinds(v.Type(), target) {
		return v.Convert(target), nil
	}

	// []any -> []T
	if target.Kind() == reflect.Slice && v.Kind() == reflect.Slice {
		out := reflect.MakeSlice(target, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, err := convertValue(v.Index(i).Interface(), target.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	}

	// map[string]any -> map[string]T
	if target.Kind() == reflect.Map && v.Kind() == reflect.Map {
		out := reflect.MakeMapWithSize(target, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key, err := convertValue(iter.Key().Interface(), target.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			elem, err := convertValue(iter.Value().Interface(), target.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(key, elem)
		}
		return out, nil
	}

	return reflect.Value{}, fmt.Errorf("无法把 %T 转换为 %v", value, target)
}

// compatibleKinds 限制 Convert 只在数值间、字符串间进行，
// 避免 int -> string 这类意外转换
func compatibleKinds(from, to reflect.Type) bool {
	numeric := func(k reflect.Kind) bool {
		return k >= reflect.Int && k <= reflect.Float64
	}
	if numeric(from.Kind()) && numeric(to.Kind()) {
		return true
	}
	return from.Kind() == to.Kind()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
