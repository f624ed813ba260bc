// connect的JSON编解码器，用于以普通Go结构体作为请求与响应的RPC服务
package rpccodec

import (
	"encoding/json"

	"connectrpc.com/connect"
)

const Name = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return Name
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// WithJSON 服务端与客户端共用的编解码选项
func WithJSON() connect.Option {
	return connect.WithCodec(jsonCodec{})
}
