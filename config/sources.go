package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// Source 配置源，Build 时按注册顺序依次加载合并
type Source interface {
	Load() (map[string]any, error)
	Name() string
}

// InMemorySource 内存配置源
type InMemorySource struct {
	Data map[string]any
}

func (s *InMemorySource) Name() string {
	return "InMemory"
}

func (s *InMemorySource) Load() (map[string]any, error) {
	result := make(map[string]any)
	mergeMaps(result, s.Data)
	return result, nil
}

// JSONFileSource JSON 文件配置源
type JSONFileSource struct {
	Path     string
	Optional bool
}

func (s *JSONFileSource) Name() string {
	return fmt.Sprintf("JSONFile(%s)", s.Path)
}

func (s *JSONFileSource) Load() (map[string]any, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if s.Optional && os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("config: parse JSON %s: %w", s.Path, err)
	}
	return result, nil
}

// YAMLFileSource YAML 文件配置源
type YAMLFileSource struct {
	Path     string
	Optional bool
}

func (s *YAMLFileSource) Name() string {
	return fmt.Sprintf("YAMLFile(%s)", s.Path)
}

func (s *YAMLFileSource) Load() (map[string]any, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if s.Optional && os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, err
	}

	var result map[string]any
	if err := yaml.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("config: parse YAML %s: %w", s.Path, err)
	}
	return result, nil
}

// EnvironmentSource 环境变量配置源，"_" 视为层级分隔
type EnvironmentSource struct {
	Prefix string
}

func (s *EnvironmentSource) Name() string {
	return fmt.Sprintf("Environment(%s)", s.Prefix)
}

func (s *EnvironmentSource) Load() (map[string]any, error) {
	result := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]

		if s.Prefix != "" {
			if !strings.HasPrefix(key, s.Prefix) {
				continue
			}
			key = strings.TrimPrefix(key, s.Prefix)
		}

		// 与文件配置源保持一致的小写键
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "_", ":")
		setNestedValue(result, key, value)
	}

	return result, nil
}

// EtcdOptions etcd 配置源选项
type EtcdOptions struct {
	Endpoints   []string      // etcd 服务器地址列表
	Username    string        // 用户名（可选）
	Password    string        // 密码（可选）
	Prefix      string        // 键前缀（可选）
	Timeout     time.Duration // 读取超时（默认 5 秒）
	DialTimeout time.Duration // 拨号超时（默认 5 秒）
}

// withDefaults 补齐未设置的超时，字面量构造的选项可直接使用
func (o EtcdOptions) withDefaults() EtcdOptions {
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}
	return o
}

// EtcdSource etcd 配置源，键路径映射为层级，值按 JSON/YAML/字符串依次尝试解析
type EtcdSource struct {
	Options EtcdOptions
}

func (s *EtcdSource) Name() string {
	return fmt.Sprintf("Etcd(%v)", s.Options.Endpoints)
}

func (s *EtcdSource) Load() (map[string]any, error) {
	opts := s.Options.withDefaults()

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   opts.Endpoints,
		Username:    opts.Username,
		Password:    opts.Password,
		DialTimeout: opts.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("config: create etcd client: %w", err)
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "/"
	}

	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("config: read from etcd: %w", err)
	}

	result := make(map[string]any)
	for _, kv := range resp.Kvs {
		key := string(kv.Key)
		value := string(kv.Value)

		if opts.Prefix != "" {
			key = strings.TrimPrefix(key, opts.Prefix)
		}
		key = strings.TrimPrefix(key, "/")
		if key == "" {
			continue
		}
		key = strings.ReplaceAll(key, "/", ":")

		setNestedValue(result, key, decodeEtcdValue(value))
	}

	return result, nil
}

func decodeEtcdValue(value string) any {
	var jsonValue any
	if err := json.Unmarshal([]byte(value), &jsonValue); err == nil {
		return jsonValue
	}
	var yamlValue any
	if err := yaml.Unmarshal([]byte(value), &yamlValue); err == nil {
		return yamlValue
	}
	return value
}
