// Package rpc carries the wire-level request and response shapes exchanged
// between the history, matching and frontend processes, along with the gRPC
// plumbing (codec, service descriptors, client stubs) needed to move them
// over the network without a protoc-generated stub.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is registered with grpc's encoding package and selected via the
// "json" content-subtype (content-type application/grpc+json) on every call
// made through this package's clients.
const CodecName = "json"

// jsonCodec implements encoding.Codec on top of encoding/json so that the
// hand-written request/response structs in this package can travel over a
// real *grpc.Server / *grpc.ClientConn without generated marshal code.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
