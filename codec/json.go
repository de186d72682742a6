package codec

import (
	"encoding/json"
	"io"

	"duplexrpc"

	"github.com/sirupsen/logrus"
)

type JsonCodec struct {
	conn io.ReadWriteCloser
	dec  *json.Decoder
	enc  *json.Encoder
}

func NewJsonCodec(conn io.ReadWriteCloser) Codec {
	return &JsonCodec{
		conn: conn,
		dec:  json.NewDecoder(conn),
		enc:  json.NewEncoder(conn),
	}
}

func (c *JsonCodec) Read(msg *duplexrpc.Message) error {
	if err := c.dec.Decode(msg); err != nil {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			logrus.Errorf("decode error: %v", err)
		}
		return err
	}
	// JSON 解码把描述符摊平成了 map，恢复成具体类型
	for i, v := range msg.Args {
		msg.Args[i] = retag(v)
	}
	msg.Result = retag(msg.Result)
	return nil
}

// 形如 {"type":"function"|"cancel","id":...} 的 map 还原成描述符
func retag(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 2 {
		return v
	}
	typ, ok := m["type"].(string)
	if !ok {
		return v
	}
	id, ok := m["id"].(string)
	if !ok {
		return v
	}
	switch duplexrpc.DescriptorType(typ) {
	case duplexrpc.DescriptorFunction, duplexrpc.DescriptorCancel:
		return duplexrpc.Descriptor{Type: duplexrpc.DescriptorType(typ), ID: id}
	}
	return v
}

func (c *JsonCodec) Write(msg *duplexrpc.Message) error {
	if err := c.enc.Encode(msg); err != nil {
		logrus.Errorf("encode error: %v", err)
		return err
	}
	return nil
}

func (c *JsonCodec) Close() error {
	return c.conn.Close()
}
