package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Configuration 分层配置的只读视图，键路径支持 "a.b.c" 与 "a:b:c" 两种写法
type Configuration interface {
	// Get 获取配置值，不存在时返回空串
	Get(key string) string
	// GetWithDefault 获取配置值，不存在时返回默认值
	GetWithDefault(key, defaultValue string) string
	// GetInt 获取整数配置值
	GetInt(key string) (int, error)
	// GetBool 获取布尔配置值
	GetBool(key string) (bool, error)
	// Lookup 获取原始配置值及其存在性
	Lookup(key string) (any, bool)
	// Section 获取配置子节
	Section(key string) Configuration
	// Bind 将配置节绑定到结构体
	Bind(key string, target any) error
	// All 获取全部配置的副本
	All() map[string]any
}

type configuration struct {
	data map[string]any
	mu   sync.RWMutex
}

func (c *configuration) Get(key string) string {
	value, ok := c.Lookup(key)
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c *configuration) GetWithDefault(key, defaultValue string) string {
	if value := c.Get(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *configuration) GetInt(key string) (int, error) {
	value, ok := c.Lookup(key)
	if !ok || value == nil {
		return 0, fmt.Errorf("config: key %s not found", key)
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("config: cannot convert %v to int", value)
	}
}

func (c *configuration) GetBool(key string) (bool, error) {
	value, ok := c.Lookup(key)
	if !ok || value == nil {
		return false, fmt.Errorf("config: key %s not found", key)
	}
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("config: cannot convert %v to bool", value)
	}
}

func (c *configuration) Lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if key == "" {
		return c.data, true
	}

	parts := strings.Split(strings.ReplaceAll(key, ":", "."), ".")
	current := any(c.data)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func (c *configuration) Section(key string) Configuration {
	value, ok := c.Lookup(key)
	if ok {
		if m, ok := value.(map[string]any); ok {
			return &configuration{data: m}
		}
	}
	return &configuration{data: make(map[string]any)}
}

// Bind 借 JSON 编解码完成弱类型到结构体的映射
func (c *configuration) Bind(key string, target any) error {
	value, ok := c.Lookup(key)
	if !ok {
		return fmt.Errorf("config: key %s not found", key)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("config: marshal section %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("config: bind section %s: %w", key, err)
	}
	return nil
}

func (c *configuration) All() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]any)
	mergeMaps(result, c.data)
	return result
}

// mergeMaps 深合并，src 覆盖 dst 的同名标量
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if dstMap, ok := dst[k].(map[string]any); ok {
			if srcMap, ok := v.(map[string]any); ok {
				mergeMaps(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}

// setNestedValue 按 ":" 分隔的路径写入嵌套值，字符串尝试还原为数值或布尔
func setNestedValue(data map[string]any, path string, value any) {
	parts := strings.Split(path, ":")
	current := data

	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		m, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = m
	}

	if strValue, ok := value.(string); ok {
		if intValue, err := strconv.Atoi(strValue); err == nil {
			value = intValue
		} else if floatValue, err := strconv.ParseFloat(strValue, 64); err == nil {
			value = floatValue
		} else if boolValue, err := strconv.ParseBool(strValue); err == nil {
			value = boolValue
		}
	}

	current[parts[len(parts)-1]] = value
}
