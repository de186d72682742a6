package duplexrpc

import (
	"fmt"
)

// Insert 消费一条收到的报文，立即返回
// invoke 在单独的协程里执行，其余类型就地处理，任何失败都不会从这里抛出
func (c *Controller) Insert(msg *Message) {
	if msg == nil {
		return
	}
	switch msg.Kind {
	case KindInvoke:
		go func() {
			if resp := c.handleInvoke(msg); resp != nil {
				c.respond(resp)
			}
		}()
	case KindResult:
		c.handleResult(msg)
	case KindError:
		c.handleError(msg)
	case KindPurge:
		c.handlePurge(msg)
	case KindNone:
		c.logger.Debugf("duplexrpc.Controller.Insert: none message %s", msg.MessageID)
	default:
		c.logger.Warnf("duplexrpc.Controller.Insert: unknown message kind %q", msg.Kind)
	}
}

// InsertWaitable 消费一条报文并把应答返回给调用方，而不经过发送回调
// 适合请求自带应答通道的传输
func (c *Controller) InsertWaitable(msg *Message) (*Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("duplexrpc.Controller.InsertWaitable: nil message")
	}
	switch msg.Kind {
	case KindInvoke:
		resp := c.handleInvoke(msg)
		if resp == nil {
			resp = noneMessage(msg.MessageID)
		}
		return resp, nil
	case KindResult:
		c.handleResult(msg)
		return msg, nil
	case KindError:
		c.handleError(msg)
		return msg, nil
	case KindPurge:
		c.handlePurge(msg)
		return msg, nil
	case KindNone:
		c.logger.Debugf("duplexrpc.Controller.InsertWaitable: none message %s", msg.MessageID)
		return msg, nil
	default:
		return nil, fmt.Errorf("duplexrpc.Controller.InsertWaitable: unknown message kind %q", msg.Kind)
	}
}

// 把应答推回发送回调，失败只记日志不重试
func (c *Controller) respond(resp *Message) {
	if _, err := c.send(resp); err != nil {
		c.logger.Warnf("duplexrpc.Controller.respond: send %s %s: %v", resp.Kind, resp.MessageID, err)
	}
}

// 处理一条 invoke，返回应答报文
// 单向调用返回 nil，结果丢弃，错误只记日志
func (c *Controller) handleInvoke(msg *Message) *Message {
	c.lock.Lock()
	var f *Func
	if entry, ok := c.objects[msg.FunctionID]; ok {
		f = entry.ref.Value()
	}
	c.lock.Unlock()
	if f == nil {
		return errorMessage(msg.MessageID, &ErrorInfo{
			Name:    "Error",
			Message: fmt.Sprintf("Function '%s' is not found", msg.FunctionID),
		})
	}

	args, adapters := c.importArgs(msg.Args)
	defer c.releaseAdapters(adapters)

	result, err := callTarget(f, args)
	if msg.OneWay {
		if err != nil {
			c.logger.Errorf("duplexrpc.Controller.handleInvoke: one-way %s: %v", msg.FunctionID, err)
		}
		return nil
	}
	if err != nil {
		return errorMessage(msg.MessageID, c.toErrorInfo(err))
	}
	return resultMessage(msg.MessageID, c.exportValue(result))
}

// 调用目标过程，panic 也转换成错误，绝不打穿分发器
func callTarget(f *Func, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredToError(r)
		}
	}()
	return f.Call(args...)
}

// 用报文携带的 MessageID 找到等待中的调用并完成它
// 分发器从不用别的键去匹配
func (c *Controller) handleResult(msg *Message) {
	inv := c.removeInvocation(msg.MessageID)
	if inv == nil {
		c.logger.Warnf("duplexrpc.Controller.handleResult: spurious result %s", msg.MessageID)
		return
	}
	v, _ := c.importValue(msg.Result)
	inv.finish(v, nil)
}

func (c *Controller) handleError(msg *Message) {
	inv := c.removeInvocation(msg.MessageID)
	if inv == nil {
		c.logger.Warnf("duplexrpc.Controller.handleError: spurious error %s", msg.MessageID)
		return
	}
	inv.finish(nil, c.fromErrorInfo(msg.Error))
}

// 对端不再引用这个标识符，放掉强引用并撤销清理回调
// 不认识的标识符静默忽略
func (c *Controller) handlePurge(msg *Message) {
	c.lock.Lock()
	defer c.lock.Unlock()
	f, registered := c.registry[msg.FunctionID]
	entry, tracked := c.objects[msg.FunctionID]
	if !registered && !tracked {
		return
	}
	delete(c.registry, msg.FunctionID)
	if tracked {
		entry.cleanup.Stop()
		delete(c.objects, msg.FunctionID)
		if live := entry.ref.Value(); live != nil {
			live.id = ""
			live.ctrl = nil
		}
	} else if f != nil {
		f.id = ""
		f.ctrl = nil
	}
}
