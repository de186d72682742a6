package duplexrpc

import (
	"context"
	"fmt"
)

// 从后往前在参数里找取消令牌
func findToken(args []any) context.Context {
	for i := len(args) - 1; i >= 0; i-- {
		if ctx, ok := args[i].(context.Context); ok {
			return ctx
		}
	}
	return nil
}

// Invoke 调用对端注册在 functionID 上的函数并等待结果
// 参数里的取消令牌除了被传输给对端，也会中止本地的等待
func (c *Controller) Invoke(ctx context.Context, functionID string, args ...any) (any, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	token := findToken(args)

	msg := &Message{
		Kind:       KindInvoke,
		MessageID:  newID(),
		FunctionID: functionID,
		Args:       c.exportArgs(args),
	}
	inv := &invocation{messageID: msg.MessageID, done: make(chan struct{})}

	// 必须先登记再发送，同步到达的应答才不会扑空
	c.lock.Lock()
	if c.released {
		c.lock.Unlock()
		return nil, ErrControllerReleased
	}
	c.invocations[msg.MessageID] = inv
	c.lock.Unlock()

	reply, err := c.send(msg)
	if err != nil {
		c.removeInvocation(msg.MessageID)
		return nil, err
	}
	if reply != nil {
		c.removeInvocation(msg.MessageID)
		return c.interpretReply(msg.MessageID, reply)
	}

	var tokenDone <-chan struct{}
	if token != nil {
		tokenDone = token.Done()
	}
	select {
	case <-inv.done:
		return inv.result, inv.err
	case <-ctx.Done():
		c.removeInvocation(msg.MessageID)
		return nil, ctx.Err()
	case <-tokenDone:
		c.removeInvocation(msg.MessageID)
		return nil, token.Err()
	}
}

// 解释可等待发送直接带回的应答
func (c *Controller) interpretReply(messageID string, reply *Message) (any, error) {
	if reply.MessageID != messageID {
		return nil, fmt.Errorf("duplexrpc: %w: message id %s, want %s",
			ErrUnexpectedResponse, reply.MessageID, messageID)
	}
	switch reply.Kind {
	case KindResult:
		v, _ := c.importValue(reply.Result)
		return v, nil
	case KindError:
		return nil, c.fromErrorInfo(reply.Error)
	case KindNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("duplexrpc: %w: message kind %q", ErrUnexpectedResponse, reply.Kind)
	}
}

// InvokeOneWay 发起单向调用，不登记等待也不关心应答
func (c *Controller) InvokeOneWay(functionID string, args ...any) error {
	c.lock.Lock()
	if c.released {
		c.lock.Unlock()
		return ErrControllerReleased
	}
	c.lock.Unlock()
	msg := &Message{
		Kind:       KindInvoke,
		MessageID:  newID(),
		FunctionID: functionID,
		Args:       c.exportArgs(args),
		OneWay:     true,
	}
	if _, err := c.send(msg); err != nil {
		return err
	}
	return nil
}
