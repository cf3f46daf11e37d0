package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGeneration(t *testing.T) {
	var g Generation
	tag := g.Next()
	assert.True(t, g.IsCurrent(tag))
	g.Next()
	assert.False(t, g.IsCurrent(tag))
	assert.Equal(t, tag+1, g.Current())
}

func TestPump_DeliversEvents(t *testing.T) {
	var g Generation
	tag := g.Next()
	events := make(chan int, 3)
	got := make(chan int, 3)

	done := make(chan struct{})
	go func() {
		Pump(&g, tag, events, 10*time.Millisecond, func(e int) { got <- e })
		close(done)
	}()

	events <- 1
	events <- 2
	assert.Equal(t, 1, <-got)
	assert.Equal(t, 2, <-got)

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("通道关闭后循环应退出")
	}
}

func TestPump_ExitsOnStaleGeneration(t *testing.T) {
	var g Generation
	tag := g.Next()
	events := make(chan int)

	done := make(chan struct{})
	go func() {
		Pump(&g, tag, events, 10*time.Millisecond, func(int) {})
		close(done)
	}()

	g.Next()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("代数过期后循环应在一个轮询周期内退出")
	}
}
