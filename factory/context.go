package factory

// creationContext 一次最外层 Resolve 调用的创建上下文。
// 它显式记录"本调用链上正在创建的名称"，作为参数随解析递归传递，
// 从而把同链重入（打破依赖环的正常路径）与跨 goroutine 争用
// （需要阻塞等待的路径）区分开，依赖边的归属也因此是确定的。
type creationContext struct {
	// chain 创建名称栈，栈底是最外层请求的对象
	chain []string
	// active chain 的集合视图
	active map[string]bool
}

func newCreationContext() *creationContext {
	return &creationContext{active: make(map[string]bool)}
}

// inCreation 名称是否正在本链上创建
func (ctx *creationContext) inCreation(name string) bool {
	return ctx.active[name]
}

// push 进入 name 的创建
func (ctx *creationContext) push(name string) {
	ctx.chain = append(ctx.chain, name)
	ctx.active[name] = true
}

// pop 离开最近一次 push 的创建
func (ctx *creationContext) pop() {
	if len(ctx.chain) == 0 {
		return
	}
	name := ctx.chain[len(ctx.chain)-1]
	ctx.chain = ctx.chain[:len(ctx.chain)-1]
	delete(ctx.active, name)
}

// current 当前正在创建的名称，用于归属隐式发现的依赖边
func (ctx *creationContext) current() (string, bool) {
	if len(ctx.chain) == 0 {
		return "", false
	}
	return ctx.chain[len(ctx.chain)-1], true
}

// cycleFrom 截取从 name 第一次出现到链尾的环，再闭合回 name
func (ctx *creationContext) cycleFrom(name string) []string {
	for i, n := range ctx.chain {
		if n == name {
			cycle := append([]string(nil), ctx.chain[i:]...)
			return append(cycle, name)
		}
	}
	return append(append([]string(nil), ctx.chain...), name)
}
