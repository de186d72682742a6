package duplexrpc

import (
	"context"
	"errors"
	"sync"
)

var errSequenceClosed = errors.New("duplexrpc: sequence closed")

// Sequence 是流式调用在消费端的惰性序列
// 用法和 bufio.Scanner 一致：
//
//	seq := ctrl.Iterate(ctx, "countUp", 1, 5)
//	for seq.Next() {
//		use(seq.Value())
//	}
//	if err := seq.Err(); err != nil { ... }
type Sequence struct {
	items chan any
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
	cur   any
	err   error
}

// Iterate 发起流式调用
// 把本地的产出回调作为第一个参数传给对端的生成器包装，
// 元素经无缓冲通道送进序列：对端产出第 N+1 个元素之前，
// 第 N 个的回调必须先完成，顺序由此保证
func (c *Controller) Iterate(ctx context.Context, functionID string, args ...any) *Sequence {
	seq := &Sequence{
		items: make(chan any),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	yield := NewFunc(func(args ...any) (any, error) {
		var v any
		if len(args) > 0 {
			v = args[0]
		}
		select {
		case seq.items <- v:
			return nil, nil
		case <-seq.stop:
			return nil, errSequenceClosed
		}
	})
	callArgs := append([]any{yield}, args...)
	go func() {
		_, err := c.Invoke(ctx, functionID, callArgs...)
		seq.err = err
		close(seq.done)
	}()
	return seq
}

// Next 等待下一个元素，序列结束返回 false
func (s *Sequence) Next() bool {
	select {
	case v := <-s.items:
		s.cur = v
		return true
	case <-s.done:
		return false
	}
}

// Value 返回 Next 取到的当前元素
func (s *Sequence) Value() any {
	return s.cur
}

// Err 返回让序列终止的错误，正常结束返回 nil
// 只应在 Next 返回 false 之后调用
func (s *Sequence) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close 提前放弃序列，之后对端的产出会收到错误
func (s *Sequence) Close() {
	s.once.Do(func() {
		close(s.stop)
	})
}
