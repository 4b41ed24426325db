package definition

import (
	"fmt"
	"sort"
	"sync"
)

// Registry 按名称存储对象定义，支持别名解析与父子定义合并。
// 配置加载协作方在任何 Resolve 调用之前向注册表交付一份
// 已定稿的 name -> ObjectDefinition 表。
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*ObjectDefinition
	aliases     map[string]string
	merged      map[string]*ObjectDefinition
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*ObjectDefinition),
		aliases:     make(map[string]string),
		merged:      make(map[string]*ObjectDefinition),
	}
}

// Register 注册一条定义，重名或与别名冲突时报错
func (r *Registry) Register(name string, def *ObjectDefinition) error {
	if name == "" {
		return fmt.Errorf("definition: 名称不能为空")
	}
	if def == nil {
		return fmt.Errorf("definition: 对象 '%s' 的定义为 nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[name]; exists {
		return fmt.Errorf("definition: 对象 '%s' 已注册", name)
	}
	if _, exists := r.aliases[name]; exists {
		return fmt.Errorf("definition: 名称 '%s' 已被别名占用", name)
	}

	r.definitions[name] = def
	delete(r.merged, name)
	return nil
}

// RegisterAlias 注册别名，别名链在解析时逐级展开
func (r *Registry) RegisterAlias(alias, name string) error {
	if alias == name {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[alias]; exists {
		return fmt.Errorf("definition: 别名 '%s' 与已注册定义冲突", alias)
	}
	if existing, exists := r.aliases[alias]; exists && existing != name {
		return fmt.Errorf("definition: 别名 '%s' 已指向 '%s'", alias, existing)
	}
	// 检查别名环
	visited := map[string]bool{alias: true}
	cur := name
	for {
		next, ok := r.aliases[cur]
		if !ok {
			break
		}
		if visited[next] {
			return fmt.Errorf("definition: 别名 '%s' -> '%s' 形成环", alias, name)
		}
		visited[next] = true
		cur = next
	}

	r.aliases[alias] = name
	return nil
}

// Canonical 展开别名链，返回规范名称
func (r *Registry) Canonical(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonical(name)
}

func (r *Registry) canonical(name string) string {
	for {
		next, ok := r.aliases[name]
		if !ok {
			return name
		}
		name = next
	}
}

// Contains 给定名称（或别名）是否有定义
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.definitions[r.canonical(name)]
	return ok
}

// Get 返回未合并的原始定义
func (r *Registry) Get(name string) (*ObjectDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[r.canonical(name)]
	if !ok {
		return nil, &Error{Name: name, Reason: "未找到定义"}
	}
	return def, nil
}

// Merged 返回合并父定义链之后的定义。
// 合并结果冻结并缓存，后续调用返回同一份。
func (r *Registry) Merged(name string) (*ObjectDefinition, error) {
	r.mu.RLock()
	canonical := r.canonical(name)
	if m, ok := r.merged[canonical]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.merged[canonical]; ok {
		return m, nil
	}

	m, err := r.mergeChain(canonical, map[string]bool{})
	if err != nil {
		return nil, err
	}
	if err := m.Validate(canonical); err != nil {
		return nil, err
	}
	m.Freeze()
	r.merged[canonical] = m
	return m, nil
}

func (r *Registry) mergeChain(name string, seen map[string]bool) (*ObjectDefinition, error) {
	if seen[name] {
		return nil, &Error{Name: name, Reason: "父定义链形成环"}
	}
	seen[name] = true

	def, ok := r.definitions[r.canonical(name)]
	if !ok {
		return nil, &Error{Name: name, Reason: "未找到定义"}
	}

	m := def.Clone()
	if def.Parent != "" {
		parent, err := r.mergeChain(def.Parent, seen)
		if err != nil {
			return nil, &Error{Name: name, Reason: fmt.Sprintf("父定义 '%s' 不可用", def.Parent), Cause: err}
		}
		m.mergeFrom(parent)
	}
	return m, nil
}

// Names 返回所有已注册定义名（不含别名），按字典序
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.definitions))
	for name := range r.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count 已注册定义数量
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.definitions)
}
