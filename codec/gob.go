package codec

import (
	"bufio"
	"encoding/gob"
	"io"

	"duplexrpc"

	"github.com/sirupsen/logrus"
)

func init() {
	// 参数和结果以 interface 形式传输，具体类型必须先注册
	gob.Register(duplexrpc.Descriptor{})
	gob.Register(duplexrpc.ErrorInfo{})
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(false)
	gob.Register([]byte(nil))
}

type GobCodec struct {
	conn io.ReadWriteCloser
	buf  *bufio.Writer
	dec  *gob.Decoder
	enc  *gob.Encoder
}

func NewGobCodec(conn io.ReadWriteCloser) Codec {
	buf := bufio.NewWriter(conn)
	return &GobCodec{
		conn: conn,
		buf:  buf,
		dec:  gob.NewDecoder(conn),
		enc:  gob.NewEncoder(buf),
	}
}

func (c *GobCodec) Read(msg *duplexrpc.Message) error {
	if err := c.dec.Decode(msg); err != nil {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			logrus.Errorf("decode error: %v", err)
		}
		return err
	}
	return nil
}

func (c *GobCodec) Write(msg *duplexrpc.Message) error {
	if err := c.enc.Encode(msg); err != nil {
		logrus.Errorf("encode error: %v", err)
		return err
	}
	return c.buf.Flush()
}

func (c *GobCodec) Close() error {
	return c.conn.Close()
}
