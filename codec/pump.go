package codec

import (
	"io"

	"duplexrpc"
)

// Pump 不断从编码器读取报文并喂给控制器，直到流关闭
// 对端正常挂断返回 nil，其余错误原样返回
func Pump(cc Codec, ctrl *duplexrpc.Controller) error {
	for {
		var msg duplexrpc.Message
		if err := cc.Read(&msg); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		ctrl.Insert(&msg)
	}
}
