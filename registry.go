package duplexrpc

import (
	"errors"
	"fmt"
	"sync"
)

// ReleaseHandle 是一次注册的作用域句柄
// 显式调用 Release 或在 defer 里 Close 都能保证注销
type ReleaseHandle struct {
	once sync.Once
	c    *Controller
	id   string
	f    *Func
}

// Release 注销函数，撤销清理回调并清除导出标记
// 可以重复调用
func (h *ReleaseHandle) Release() {
	h.once.Do(func() {
		c := h.c
		c.lock.Lock()
		defer c.lock.Unlock()
		if c.released {
			return
		}
		delete(c.registry, h.id)
		if entry, ok := c.objects[h.id]; ok {
			entry.cleanup.Stop()
			delete(c.objects, h.id)
		}
		h.f.id = ""
		h.f.ctrl = nil
	})
}

// Close 等价于 Release
func (h *ReleaseHandle) Close() error {
	h.Release()
	return nil
}

// Register 把函数注册到指定的标识符上，供对端调用
// 注册表强引用它，在 Release 之前不会被回收
func (c *Controller) Register(functionID string, f *Func) (*ReleaseHandle, error) {
	if f == nil {
		return nil, errors.New("duplexrpc.Controller.Register: nil function")
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.released {
		return nil, ErrControllerReleased
	}
	if f.id != "" {
		return nil, fmt.Errorf("duplexrpc: function %w: %s", ErrAlreadyRegistered, f.id)
	}
	if _, dup := c.registry[functionID]; dup {
		return nil, fmt.Errorf("duplexrpc: identifier %w: %s", ErrAlreadyRegistered, functionID)
	}
	f.id = functionID
	f.ctrl = c
	c.registry[functionID] = f
	c.insertObjectLocked(functionID, f)
	c.logger.Infof("duplexrpc.Controller.Register: %s", functionID)
	return &ReleaseHandle{c: c, id: functionID, f: f}, nil
}

// RegisterGenerator 注册一个流式过程
// 暴露出去的函数在参数表最前面多一个产出回调，包装器驱动生成器，
// 每产出一个元素就调用一次回调并等它完成，生成器抛错则原样向上传播
func (c *Controller) RegisterGenerator(functionID string, gen Generator) (*ReleaseHandle, error) {
	if gen == nil {
		return nil, errors.New("duplexrpc.Controller.RegisterGenerator: nil generator")
	}
	f := NewFunc(func(args ...any) (any, error) {
		if len(args) == 0 {
			return nil, errors.New("duplexrpc: generator invoked without a yield callback")
		}
		cb, ok := args[0].(*Func)
		if !ok {
			return nil, fmt.Errorf("duplexrpc: generator yield callback has wrong type %T", args[0])
		}
		yield := func(v any) error {
			_, err := cb.Call(v)
			return err
		}
		return nil, gen(yield, args[1:]...)
	})
	return c.Register(functionID, f)
}
