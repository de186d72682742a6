package duplexrpc

import (
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

var (
	// 控制器已经被释放
	ErrControllerReleased = errors.New("Controller released")
	// 同一个函数或标识符被重复注册
	ErrAlreadyRegistered = errors.New("already registered")
	// 可等待的发送回调返回了不匹配的报文
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// RemoteError 是从对端的错误记录重建出来的错误
// Stack 只在启用堆栈传输时携带对端的堆栈
type RemoteError struct {
	Name    string
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// 把本地抛出的错误转换成可以传输的记录
// 不是错误形状的值（如 panic 出来的值）用其运行时类型名做 Name
func (c *Controller) toErrorInfo(err error) *ErrorInfo {
	info := &ErrorInfo{Name: "Error"}
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		info.Name = rerr.Name
		info.Message = rerr.Message
	} else {
		info.Message = err.Error()
	}
	if c.produceStackTrace {
		info.Stack = fmt.Sprintf("\n------- Remote stack trace [%s]:\n%s", c.id, debug.Stack())
	}
	return info
}

// panic 恢复出来的值没有错误形状，用运行时类型名和字符串化结果兜底
func recoveredToError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	return &RemoteError{
		Name:    reflect.TypeOf(v).String(),
		Message: fmt.Sprint(v),
	}
}

// 在调用方一侧重建对端传来的错误
func (c *Controller) fromErrorInfo(info *ErrorInfo) error {
	if info == nil {
		return &RemoteError{Name: "Error", Message: "missing error info"}
	}
	rerr := &RemoteError{
		Name:    info.Name,
		Message: info.Message,
	}
	if c.produceStackTrace && info.Stack != "" {
		rerr.Stack = string(debug.Stack()) + info.Stack
	}
	return rerr
}
