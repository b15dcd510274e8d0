package sigchan

// Chan 非阻塞信号通道：只通知事件发生，不携带数据。
// 连接丢失这类信号重复触发时合并为一次即可。
type Chan struct {
	c chan struct{}
}

// New 创建信号通道
func New(bufferSize int) *Chan {
	return &Chan{c: make(chan struct{}, bufferSize)}
}

// Emit 发送信号；通道已满时直接丢弃（信号已经在途）
func (c *Chan) Emit() {
	select {
	case c.c <- struct{}{}:
	default:
	}
}

// C 返回底层通道（select 用）
func (c *Chan) C() <-chan struct{} {
	return c.c
}
