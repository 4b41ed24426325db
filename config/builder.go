package config

import (
	"fmt"
	"sync"
)

// Builder 配置构建器，配置源按添加顺序加载，后加载的覆盖先加载的
type Builder struct {
	sources []Source
	mu      sync.Mutex
}

// NewBuilder 创建配置构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// Add 添加配置源
func (b *Builder) Add(source Source) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sources = append(b.sources, source)
	return b
}

// AddJSONFile 添加 JSON 文件配置源
func (b *Builder) AddJSONFile(path string, optional ...bool) *Builder {
	return b.Add(&JSONFileSource{Path: path, Optional: len(optional) > 0 && optional[0]})
}

// AddYAMLFile 添加 YAML 文件配置源
func (b *Builder) AddYAMLFile(path string, optional ...bool) *Builder {
	return b.Add(&YAMLFileSource{Path: path, Optional: len(optional) > 0 && optional[0]})
}

// AddEnvironment 添加环境变量配置源
func (b *Builder) AddEnvironment(prefix string) *Builder {
	return b.Add(&EnvironmentSource{Prefix: prefix})
}

// AddInMemory 添加内存配置源
func (b *Builder) AddInMemory(data map[string]any) *Builder {
	return b.Add(&InMemorySource{Data: data})
}

// AddEtcd 添加 etcd 配置源
func (b *Builder) AddEtcd(opts EtcdOptions) *Builder {
	return b.Add(&EtcdSource{Options: opts})
}

// Build 加载全部配置源并合并为配置视图
func (b *Builder) Build() (Configuration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make(map[string]any)
	for _, source := range b.sources {
		data, err := source.Load()
		if err != nil {
			return nil, fmt.Errorf("config: load source %s: %w", source.Name(), err)
		}
		mergeMaps(merged, data)
	}

	return &configuration{data: merged}, nil
}
