package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName matches the "proto" content-subtype grpc-go selects by default
// (content-type "application/grpc+proto") so ordinary grpc.Dial/NewServer
// callers work unmodified; no protoc toolchain is available here, so the
// wire format underneath that subtype name is JSON rather than protobuf.
const codecName = "proto"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec, grpc-go's pluggable marshal/unmarshal
// hook (google.golang.org/grpc/encoding.Codec), the same extension point
// protoc-generated code relies on for the real protobuf codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }
