package syncgroup

import (
	"sync/atomic"
	"testing"
	"time"
)

// TestSyncGroup_RunAndWait 测试任务全部执行并等待完成
func TestSyncGroup_RunAndWait(t *testing.T) {
	g := New()
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		g.Add(func() { ran.Add(1) })
	}
	g.Run()
	g.Wait()
	if ran.Load() != 5 {
		t.Errorf("期望 5 个任务执行，得到 %d", ran.Load())
	}
	if g.Alive() != 0 {
		t.Errorf("完成后存活数应为 0，得到 %d", g.Alive())
	}
}

// TestSyncGroup_Alive 测试运行中的任务计数
func TestSyncGroup_Alive(t *testing.T) {
	g := New()
	release := make(chan struct{})
	g.Add(func() { <-release })
	g.Run()

	deadline := time.Now().Add(time.Second)
	for g.Alive() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if g.Alive() != 1 {
		t.Fatalf("期望 1 个存活任务，得到 %d", g.Alive())
	}
	close(release)
	g.Wait()
}
