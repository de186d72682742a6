package duplexrpc

import (
	"context"
	"errors"
	"io"
	"runtime"
	"sync"
	"weak"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SendFunc 是嵌入方提供的发送回调
// 返回 nil 报文表示发后不理，应答稍后通过 Insert 送回
// 返回非 nil 报文表示传输自带应答，核心直接解释它
type SendFunc func(msg *Message) (*Message, error)

// Options 是创建控制器的选项
type Options struct {
	// 控制器的诊断标签，默认随机生成
	ControllerID string
	// 日志输出，默认使用 logrus 的标准 logger
	Logger logrus.FieldLogger
	// 发送回调，必须提供
	OnSendMessage SendFunc
	// 是否在错误记录里携带远端堆栈
	ProduceStackTrace bool
}

// 对象表里的一项：对导出对象或桩函数的弱引用
type objectEntry struct {
	ref     weak.Pointer[Func]
	cleanup runtime.Cleanup
}

// 已导出的取消令牌：标识符加上订阅的停止信号
type tokenEntry struct {
	id   string
	stop chan struct{}
}

// 一次未完成的调用，在收到匹配的应答时结束
type invocation struct {
	messageID string
	result    any
	err       error
	done      chan struct{}
}

func (inv *invocation) finish(result any, err error) {
	inv.result = result
	inv.err = err
	close(inv.done)
}

// Controller 表示一个对等的 RPC 控制器
// 两个对等实例各持一个，既能注册函数供对端调用，也能调用对端的函数
type Controller struct {
	id                string
	logger            logrus.FieldLogger
	send              SendFunc
	produceStackTrace bool

	// 保护下面所有表的互斥锁
	lock     sync.Mutex
	released bool
	// 强引用表，保证注册的函数在被释放前一直存活
	registry map[string]*Func
	// 弱引用表，覆盖本地导出和对端桩函数
	objects map[string]*objectEntry
	// 正在等待应答的调用
	invocations map[string]*invocation
	// 已导出的取消令牌
	tokens map[context.Context]*tokenEntry
}

var _ io.Closer = (*Controller)(nil)

// New 创建一个控制器
func New(opt *Options) (*Controller, error) {
	if opt == nil || opt.OnSendMessage == nil {
		return nil, errors.New("duplexrpc.New: OnSendMessage is required")
	}
	c := &Controller{
		id:                opt.ControllerID,
		logger:            opt.Logger,
		send:              opt.OnSendMessage,
		produceStackTrace: opt.ProduceStackTrace,
		registry:          make(map[string]*Func),
		objects:           make(map[string]*objectEntry),
		invocations:       make(map[string]*invocation),
		tokens:            make(map[context.Context]*tokenEntry),
	}
	if c.id == "" {
		c.id = uuid.NewString()
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	return c, nil
}

// ControllerID 返回诊断标签
func (c *Controller) ControllerID() string {
	return c.id
}

// 报文标识符在两个对端共享的键空间里必须唯一，所以不能用本地计数器
func newID() string {
	return uuid.NewString()
}

// 把对象以弱引用插入对象表，并布置回收后的清理回调
// 调用方必须持有 c.lock
func (c *Controller) insertObjectLocked(id string, f *Func) {
	// 残留的死项要先撤销清理回调，否则它稍后会误删新项
	if old, ok := c.objects[id]; ok {
		old.cleanup.Stop()
	}
	entry := &objectEntry{ref: weak.Make(f)}
	entry.cleanup = runtime.AddCleanup(f, func(fid string) {
		c.finalizeObject(fid)
	}, id)
	c.objects[id] = entry
}

// 对象被回收后从表里移除，并尽力通知对端清除
func (c *Controller) finalizeObject(id string) {
	c.lock.Lock()
	if c.released {
		c.lock.Unlock()
		return
	}
	if _, ok := c.objects[id]; !ok {
		c.lock.Unlock()
		return
	}
	delete(c.objects, id)
	c.lock.Unlock()

	msg := &Message{
		Kind:       KindPurge,
		MessageID:  newID(),
		FunctionID: id,
	}
	if _, err := c.send(msg); err != nil {
		c.logger.Warnf("duplexrpc.Controller.finalizeObject: send purge %s: %v", id, err)
	}
}

// 从等待表里取走一次调用，不存在则返回 nil
func (c *Controller) removeInvocation(messageID string) *invocation {
	c.lock.Lock()
	defer c.lock.Unlock()
	inv := c.invocations[messageID]
	delete(c.invocations, messageID)
	return inv
}

// Release 释放控制器
// 清空所有表，撤销所有清理回调，拒绝所有等待中的调用
func (c *Controller) Release() {
	c.lock.Lock()
	if c.released {
		c.lock.Unlock()
		return
	}
	c.released = true
	objects := c.objects
	invocations := c.invocations
	tokens := c.tokens
	registry := c.registry
	c.registry = make(map[string]*Func)
	c.objects = make(map[string]*objectEntry)
	c.invocations = make(map[string]*invocation)
	c.tokens = make(map[context.Context]*tokenEntry)

	for _, entry := range objects {
		entry.cleanup.Stop()
		if f := entry.ref.Value(); f != nil {
			f.id = ""
			f.ctrl = nil
		}
	}
	for _, f := range registry {
		f.id = ""
		f.ctrl = nil
	}
	c.lock.Unlock()

	for _, inv := range invocations {
		inv.finish(nil, ErrControllerReleased)
	}
	for _, te := range tokens {
		close(te.stop)
	}
}

// Close 等价于 Release，便于 defer 释放
func (c *Controller) Close() error {
	c.Release()
	return nil
}
