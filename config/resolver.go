package config

import (
	"fmt"
	"strings"
)

// Resolver 把配置视图接成容器的表达式求值器。
// 表达式为 "${key}" 或 "${key:default}"；整串恰好是单个占位符时
// 返回配置中的原始类型值，否则做字符串插值。
type Resolver struct {
	config Configuration
}

// NewResolver 创建表达式求值器
func NewResolver(cfg Configuration) *Resolver {
	return &Resolver{config: cfg}
}

// Resolve 求值表达式
func (r *Resolver) Resolve(expression string) (any, error) {
	if key, def, ok := singlePlaceholder(expression); ok {
		return r.lookup(key, def)
	}
	return r.interpolate(expression)
}

func (r *Resolver) lookup(key, def string) (any, error) {
	if value, ok := r.config.Lookup(key); ok {
		return value, nil
	}
	if def != "" {
		return def, nil
	}
	return nil, fmt.Errorf("config: placeholder %q has no value and no default", key)
}

// interpolate 替换串内全部占位符，非占位符文本原样保留
func (r *Resolver) interpolate(expression string) (string, error) {
	var out strings.Builder
	rest := expression
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("config: unterminated placeholder in %q", expression)
		}
		out.WriteString(rest[:start])

		key, def := splitPlaceholder(rest[start+2 : start+end])
		value, err := r.lookup(key, def)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&out, "%v", value)

		rest = rest[start+end+1:]
	}
}

// singlePlaceholder 判断整串是否恰为一个占位符
func singlePlaceholder(expression string) (key, def string, ok bool) {
	if !strings.HasPrefix(expression, "${") || !strings.HasSuffix(expression, "}") {
		return "", "", false
	}
	inner := expression[2 : len(expression)-1]
	if strings.Contains(inner, "${") || strings.Contains(inner, "}") {
		return "", "", false
	}
	key, def = splitPlaceholder(inner)
	return key, def, true
}

func splitPlaceholder(inner string) (key, def string) {
	// 默认值分隔符用 "|"，避免与键路径里的 ":" 冲突
	if idx := strings.Index(inner, "|"); idx >= 0 {
		return inner[:idx], inner[idx+1:]
	}
	return inner, ""
}
