package duplexrpc

import (
	"context"
	"sync/atomic"
)

// Target 是注册到控制器上的本地过程
// 参数和返回值对核心来说是不透明的
type Target func(args ...any) (any, error)

// Generator 是流式过程，每产出一个元素调用一次 yield
// yield 返回错误时应该立即中止
type Generator func(yield func(v any) error, args ...any) error

// Func 表示一个可以跨控制器边界传递的函数
// 本地函数被导出后分配标识符，对端收到的是持有同一标识符的桩函数
type Func struct {
	// 导出后分配的标识符，为空表示尚未导出
	id string
	// 持有标记的控制器：导出方，或合成桩函数/取消适配器的一方
	ctrl *Controller
	// 真正执行的过程，桩函数则是远程调用的包装
	fn Target
	// 是否是指向对端的桩函数
	stub bool
	// 取消适配器关联的合成令牌
	token context.Context
	// 被调用的次数
	numCalls uint64
}

// NewFunc 把一个本地过程包装成可以跨边界传递的函数
func NewFunc(fn Target) *Func {
	return &Func{fn: fn}
}

// Call 调用这个函数
// 桩函数会向对端发起远程调用并等待结果
func (f *Func) Call(args ...any) (any, error) {
	atomic.AddUint64(&f.numCalls, 1)
	return f.fn(args...)
}

// NumCalls 返回被调用的次数
func (f *Func) NumCalls() uint64 {
	return atomic.LoadUint64(&f.numCalls)
}
