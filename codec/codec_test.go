package codec

import (
	"bytes"
	"reflect"
	"testing"

	"duplexrpc"
)

type rwc struct {
	bytes.Buffer
}

func (*rwc) Close() error { return nil }

func TestGobRoundTrip(t *testing.T) {
	t.Parallel()
	cc := NewGobCodec(&rwc{})
	sent := &duplexrpc.Message{
		Kind:       duplexrpc.KindInvoke,
		MessageID:  "m-1",
		FunctionID: "add",
		Args: []any{
			1, "two", 3.5, true,
			duplexrpc.Descriptor{Type: duplexrpc.DescriptorFunction, ID: "f-1"},
			duplexrpc.Descriptor{Type: duplexrpc.DescriptorCancel, ID: "c-1"},
		},
	}
	if err := cc.Write(sent); err != nil {
		t.Fatal(err)
	}
	var got duplexrpc.Message
	if err := cc.Read(&got); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(&got, sent) {
		t.Fatalf("got %+v, want %+v", got, sent)
	}
}

func TestGobErrorMessage(t *testing.T) {
	t.Parallel()
	cc := NewGobCodec(&rwc{})
	sent := &duplexrpc.Message{
		Kind:      duplexrpc.KindError,
		MessageID: "m-2",
		Error:     &duplexrpc.ErrorInfo{Name: "Error", Message: "test", Stack: "trace"},
	}
	if err := cc.Write(sent); err != nil {
		t.Fatal(err)
	}
	var got duplexrpc.Message
	if err := cc.Read(&got); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Error, sent.Error) {
		t.Fatalf("got %+v, want %+v", got.Error, sent.Error)
	}
}

// JSON 往返后描述符必须恢复成具体类型，数字按 JSON 的规则变成 float64
func TestJsonRoundTrip(t *testing.T) {
	t.Parallel()
	cc := NewJsonCodec(&rwc{})
	sent := &duplexrpc.Message{
		Kind:       duplexrpc.KindInvoke,
		MessageID:  "m-3",
		FunctionID: "add",
		Args: []any{
			1, "two",
			duplexrpc.Descriptor{Type: duplexrpc.DescriptorFunction, ID: "f-1"},
			map[string]any{"type": "unrelated", "id": "keep-as-map"},
		},
	}
	if err := cc.Write(sent); err != nil {
		t.Fatal(err)
	}
	var got duplexrpc.Message
	if err := cc.Read(&got); err != nil {
		t.Fatal(err)
	}
	if got.Args[0] != float64(1) {
		t.Fatalf("number: got %T %v", got.Args[0], got.Args[0])
	}
	if got.Args[1] != "two" {
		t.Fatalf("string: got %v", got.Args[1])
	}
	d, ok := got.Args[2].(duplexrpc.Descriptor)
	if !ok || d.ID != "f-1" || d.Type != duplexrpc.DescriptorFunction {
		t.Fatalf("descriptor: got %T %v", got.Args[2], got.Args[2])
	}
	if _, ok := got.Args[3].(map[string]any); !ok {
		t.Fatalf("unrelated map was retagged: %T", got.Args[3])
	}
}

func TestCodecFuncMap(t *testing.T) {
	t.Parallel()
	if NewCodecFuncMap[GobType] == nil {
		t.Fatal("gob codec missing")
	}
	if NewCodecFuncMap[JsonType] == nil {
		t.Fatal("json codec missing")
	}
}
