package main

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"

	"duplexrpc"
	"duplexrpc/codec"
	"duplexrpc/main/logfmt"

	"github.com/sirupsen/logrus"
)

func init() {
	//设置output,默认为stderr,可以为任何io.Writer,比如文件*os.File
	logrus.SetOutput(os.Stdout)
	//设置最低loglevel
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetReportCaller(true)
	logrus.SetFormatter(&logfmt.MyFormatter{})
}

// 在一条连接上跑一个控制器：写报文走编码器，读循环喂 Insert
func startPeer(id string, conn net.Conn) *duplexrpc.Controller {
	cc := codec.NewGobCodec(conn)
	var sending sync.Mutex
	ctrl, err := duplexrpc.New(&duplexrpc.Options{
		ControllerID: id,
		OnSendMessage: func(msg *duplexrpc.Message) (*duplexrpc.Message, error) {
			sending.Lock()
			defer sending.Unlock()
			return nil, cc.Write(msg)
		},
	})
	if err != nil {
		logrus.Fatal(err)
	}
	go func() {
		if err := codec.Pump(cc, ctrl); err != nil {
			logrus.Errorf("%s: pump: %v", id, err)
		}
		ctrl.Release()
	}()
	return ctrl
}

func main() {
	left, right := net.Pipe()
	server := startPeer("server", left)
	client := startPeer("client", right)
	defer server.Release()
	defer client.Release()

	// 服务端注册普通函数和生成器
	_, _ = server.Register("add", duplexrpc.NewFunc(func(args ...any) (any, error) {
		a, aok := args[0].(int)
		b, bok := args[1].(int)
		if !aok || !bok {
			return nil, errors.New("add: want two ints")
		}
		return a + b, nil
	}))
	_, _ = server.RegisterGenerator("countUp", func(yield func(any) error, args ...any) error {
		from, to := args[0].(int), args[1].(int)
		for i := from; i <= to; i++ {
			if err := yield(i); err != nil {
				return err
			}
		}
		return nil
	})
	// 两个方向都能调：客户端也注册一个
	_, _ = client.Register("hello", duplexrpc.NewFunc(func(args ...any) (any, error) {
		return "hello " + args[0].(string), nil
	}))

	ctx := context.Background()

	sum, err := client.Invoke(ctx, "add", 1, 2)
	if err != nil {
		logrus.Errorf("invoke add: %v", err)
	} else {
		logrus.Infof("add(1, 2) = %v", sum)
	}

	greeting, err := server.Invoke(ctx, "hello", "duplex")
	if err != nil {
		logrus.Errorf("invoke hello: %v", err)
	} else {
		logrus.Infof("hello => %v", greeting)
	}

	// 回调：把本地函数作为参数传给对端
	callback := duplexrpc.NewFunc(func(args ...any) (any, error) {
		return args[0].(int) + 5, nil
	})
	_, _ = server.Register("callOne", duplexrpc.NewFunc(func(args ...any) (any, error) {
		f := args[0].(*duplexrpc.Func)
		return f.Call(1)
	}))
	got, err := client.Invoke(ctx, "callOne", callback)
	if err != nil {
		logrus.Errorf("invoke callOne: %v", err)
	} else {
		logrus.Infof("callOne(n+5) = %v", got)
	}

	// 流式调用
	seq := client.Iterate(ctx, "countUp", 1, 5)
	var items []any
	for seq.Next() {
		items = append(items, seq.Value())
	}
	if err := seq.Err(); err != nil {
		logrus.Errorf("iterate countUp: %v", err)
	} else {
		logrus.Infof("countUp(1, 5) = %v", items)
	}
}
