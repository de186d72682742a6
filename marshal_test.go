package duplexrpc

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCallback(t *testing.T) {
	t.Parallel()
	a, b := pair(t)
	mustRegister(t, a, "callOne", func(args ...any) (any, error) {
		f := args[0].(*Func)
		return f.Call(1)
	})
	got, err := b.Invoke(context.Background(), "callOne", NewFunc(func(args ...any) (any, error) {
		return args[0].(int) + 5, nil
	}))
	_assert(t, err == nil, "invoke: %v", err)
	_assert(t, got == 6, "got %v, want 6", got)
}

func TestDuplexCallback(t *testing.T) {
	t.Parallel()
	a, b := pair(t)
	mustRegister(t, a, "callDuplex", func(args ...any) (any, error) {
		f := args[0].(*Func)
		return f.Call(NewFunc(func(inner ...any) (any, error) {
			return inner[0].(int) + 7, nil
		}))
	})
	got, err := b.Invoke(context.Background(), "callDuplex", NewFunc(func(args ...any) (any, error) {
		fi := args[0].(*Func)
		return fi.Call(13)
	}))
	_assert(t, err == nil, "invoke: %v", err)
	_assert(t, got == 20, "got %v, want 20", got)
}

// 同一个标识符导入两次必须得到同一个对象
func TestStubIdentity(t *testing.T) {
	t.Parallel()
	a, b := pair(t)
	mustRegister(t, a, "same", func(args ...any) (any, error) {
		return args[0].(*Func) == args[1].(*Func), nil
	})
	cb := NewFunc(func(args ...any) (any, error) { return nil, nil })
	got, err := b.Invoke(context.Background(), "same", cb, cb)
	_assert(t, err == nil, "invoke: %v", err)
	_assert(t, got == true, "stubs differ for one identifier")
}

// 返回值里的函数也走同样的描述符机制
func TestReturnedFunction(t *testing.T) {
	t.Parallel()
	a, b := pair(t)
	mustRegister(t, a, "makeAdder", func(args ...any) (any, error) {
		base := args[0].(int)
		return NewFunc(func(inner ...any) (any, error) {
			return base + inner[0].(int), nil
		}), nil
	})
	got, err := b.Invoke(context.Background(), "makeAdder", 10)
	_assert(t, err == nil, "invoke: %v", err)
	adder, ok := got.(*Func)
	_assert(t, ok, "want *Func, got %T", got)
	sum, err := adder.Call(2)
	_assert(t, err == nil, "call returned adder: %v", err)
	_assert(t, sum == 12, "got %v, want 12", sum)
}

// 取消在调用方点火后要传播到被调方的合成令牌，
// 点火走的单向调用必须命中导出时分配的那个标识符
func TestCancellationPropagation(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var exportedID string
	var firedID string
	observed := make(chan struct{})

	a, b := pairTap(t,
		nil,
		func(msg *Message) {
			mu.Lock()
			defer mu.Unlock()
			if msg.Kind != KindInvoke {
				return
			}
			if msg.OneWay && msg.FunctionID == exportedID {
				firedID = msg.FunctionID
				return
			}
			for _, v := range msg.Args {
				if d, ok := v.(Descriptor); ok && d.Type == DescriptorCancel {
					exportedID = d.ID
				}
			}
		})

	mustRegister(t, a, "watch", func(args ...any) (any, error) {
		tok := args[len(args)-1].(context.Context)
		select {
		case <-tok.Done():
			close(observed)
			return nil, tok.Err()
		case <-time.After(5 * time.Second):
			return nil, errors.New("token never fired")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.Invoke(context.Background(), "watch", 1, ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		_assert(t, errors.Is(err, context.Canceled), "want Canceled, got %v", err)
	case <-time.After(time.Second):
		t.Fatal("caller wait did not abort")
	}
	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatal("callee token never fired")
	}
	mu.Lock()
	_assert(t, exportedID != "", "no cancel descriptor was exported")
	mu.Unlock()
	mu.Lock()
	_assert(t, firedID == exportedID, "fire went to %q, exported %q", firedID, exportedID)
	mu.Unlock()
}

// 匿名回调的桩函数被回收后，对端要收到 purge，
// 之后伪造的调用只能得到 is not found
func TestAnonymousCallbackPurge(t *testing.T) {
	var mu sync.Mutex
	var callbackID string
	purged := make(chan string, 1)

	a, b := pairTap(t,
		// a 侧的发出流量里找 purge
		func(msg *Message) {
			if msg.Kind == KindPurge {
				select {
				case purged <- msg.FunctionID:
				default:
				}
			}
		},
		// b 侧的发出流量里记下回调的标识符
		func(msg *Message) {
			mu.Lock()
			defer mu.Unlock()
			if msg.Kind != KindInvoke {
				return
			}
			for _, v := range msg.Args {
				if d, ok := v.(Descriptor); ok && d.Type == DescriptorFunction {
					callbackID = d.ID
				}
			}
		})

	mustRegister(t, a, "callOnce", func(args ...any) (any, error) {
		return args[0].(*Func).Call(2)
	})
	got, err := b.Invoke(context.Background(), "callOnce", NewFunc(func(args ...any) (any, error) {
		return args[0].(int) * 3, nil
	}))
	_assert(t, err == nil, "invoke: %v", err)
	_assert(t, got == 6, "got %v", got)
	mu.Lock()
	id := callbackID
	mu.Unlock()
	_assert(t, id != "", "callback descriptor never crossed the wire")

	// 催促回收 a 侧的桩函数，等 purge 穿过来
	var gotPurge string
	deadline := time.After(5 * time.Second)
	for gotPurge == "" {
		runtime.GC()
		select {
		case gotPurge = <-purged:
		case <-deadline:
			t.Fatal("no purge after stub collection")
		case <-time.After(20 * time.Millisecond):
		}
	}
	_assert(t, gotPurge == id, "purge for %q, want %q", gotPurge, id)

	// 等 b 处理完 purge，伪造的调用必须已经找不到目标
	var rerr *RemoteError
	for i := 0; ; i++ {
		_, err = a.Invoke(context.Background(), id)
		if errors.As(err, &rerr) && strings.Contains(rerr.Message, "is not found") {
			break
		}
		if i > 100 {
			t.Fatalf("invoke after purge: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
