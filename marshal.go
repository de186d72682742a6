package duplexrpc

import "context"

// 对外发送的变换：函数换成函数描述符，取消令牌换成取消描述符，其余原样通过
func (c *Controller) exportValue(v any) any {
	switch t := v.(type) {
	case *Func:
		return c.exportFunc(t)
	case context.Context:
		return c.exportToken(t)
	default:
		return v
	}
}

func (c *Controller) exportArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, v := range args {
		out[i] = c.exportValue(v)
	}
	return out
}

// 导出一个函数
// 已导出的直接复用标识符；匿名函数除了弱表项还要进注册表强引用，
// 这样对端有时间持住它的桩函数，等对端的 purge 到来才放手
func (c *Controller) exportFunc(f *Func) Descriptor {
	c.lock.Lock()
	defer c.lock.Unlock()
	if f.ctrl == c && f.id != "" {
		return Descriptor{Type: DescriptorFunction, ID: f.id}
	}
	id := newID()
	f.id = id
	f.ctrl = c
	c.registry[id] = f
	c.insertObjectLocked(id, f)
	return Descriptor{Type: DescriptorFunction, ID: id}
}

// 导出一个取消令牌
// 订阅它的取消事件：触发时向对端该标识符发一次单向调用
func (c *Controller) exportToken(ctx context.Context) Descriptor {
	c.lock.Lock()
	if te, ok := c.tokens[ctx]; ok {
		c.lock.Unlock()
		return Descriptor{Type: DescriptorCancel, ID: te.id}
	}
	te := &tokenEntry{id: newID(), stop: make(chan struct{})}
	c.tokens[ctx] = te
	c.lock.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			if err := c.InvokeOneWay(te.id); err != nil {
				c.logger.Warnf("duplexrpc.Controller.exportToken: notify cancel %s: %v", te.id, err)
			}
			c.lock.Lock()
			delete(c.tokens, ctx)
			c.lock.Unlock()
		case <-te.stop:
		}
	}()
	return Descriptor{Type: DescriptorCancel, ID: te.id}
}

// 接收方向的变换：描述符换回桩函数或合成令牌，其余原样通过
// 返回本次变换合成的取消适配器标识符，调用处理完后释放它们
func (c *Controller) importArgs(args []any) ([]any, []string) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]any, len(args))
	var adapters []string
	for i, v := range args {
		imported, adapter := c.importValue(v)
		out[i] = imported
		if adapter != "" {
			adapters = append(adapters, adapter)
		}
	}
	return out, adapters
}

func (c *Controller) importValue(v any) (any, string) {
	var d Descriptor
	switch t := v.(type) {
	case Descriptor:
		d = t
	case *Descriptor:
		d = *t
	default:
		return v, ""
	}
	switch d.Type {
	case DescriptorFunction:
		return c.importFunc(d.ID), ""
	case DescriptorCancel:
		return c.importToken(d.ID)
	default:
		c.logger.Warnf("duplexrpc.Controller.importValue: unknown descriptor type %q", d.Type)
		return v, ""
	}
}

// 导入一个函数描述符
// 同一个标识符必须得到同一个对象，所以先查对象表；
// 没有活的对象才合成桩函数，桩函数被回收时向对端发 purge
func (c *Controller) importFunc(id string) *Func {
	c.lock.Lock()
	defer c.lock.Unlock()
	if entry, ok := c.objects[id]; ok {
		if f := entry.ref.Value(); f != nil {
			return f
		}
	}
	stub := &Func{id: id, ctrl: c, stub: true}
	stub.fn = func(args ...any) (any, error) {
		return c.Invoke(context.Background(), id, args...)
	}
	c.insertObjectLocked(id, stub)
	return stub
}

// 导入一个取消描述符
// 在本地造一个取消控制器，把触发它的适配器注册在同一个标识符下，
// 对端的单向调用到达时适配器点燃合成令牌
func (c *Controller) importToken(id string) (context.Context, string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if entry, ok := c.objects[id]; ok {
		if f := entry.ref.Value(); f != nil && f.token != nil {
			return f.token, ""
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &Func{id: id, ctrl: c, token: ctx}
	adapter.fn = func(args ...any) (any, error) {
		cancel()
		return nil, nil
	}
	c.registry[id] = adapter
	c.insertObjectLocked(id, adapter)
	return ctx, id
}

// 释放一次调用期间合成的取消适配器
func (c *Controller) releaseAdapters(ids []string) {
	if len(ids) == 0 {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, id := range ids {
		if f, ok := c.registry[id]; ok && f.token != nil {
			delete(c.registry, id)
			if entry, ok := c.objects[id]; ok {
				entry.cleanup.Stop()
				delete(c.objects, id)
			}
			f.id = ""
			f.ctrl = nil
		}
	}
}
