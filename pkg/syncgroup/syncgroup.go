package syncgroup

import "sync"

// SyncGroup 包装 sync.WaitGroup，统一管理会话内长驻 goroutine
// 的启动与等待，避免散落的 Add/Done 配对遗漏。
type SyncGroup struct {
	wg sync.WaitGroup

	mu    sync.Mutex
	fns   []func()
	alive int
}

// New 创建空组
func New() *SyncGroup {
	return &SyncGroup{}
}

// Add 登记一个待启动的函数。必须在 Run 之前调用。
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fns = append(g.fns, fn)
}

// Run 启动全部已登记的函数并清空登记列表
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.fns
	g.fns = nil
	g.alive += len(fns)
	g.mu.Unlock()

	for _, fn := range fns {
		g.wg.Add(1)
		go func(do func()) {
			defer func() {
				g.wg.Done()
				g.mu.Lock()
				g.alive--
				g.mu.Unlock()
			}()
			do()
		}(fn)
	}
}

// Wait 等待全部 goroutine 退出
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// Alive 返回仍在运行的 goroutine 数（诊断用）
func (g *SyncGroup) Alive() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.alive
}
