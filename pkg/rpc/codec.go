package rpc

import (
	"encoding/json"
	"errors"

	"connectrpc.com/connect"
)

// CodecName is registered under the same name as Connect's protobuf JSON
// codec, so clients speaking application/json reach it unchanged.
const CodecName = "json"

// ErrorKindHeader carries the server's error kind on failed calls.
const ErrorKindHeader = "Teamsync-Error-Kind"

// Codec marshals plain Go messages as JSON.
type Codec struct{}

var _ connect.Codec = Codec{}

// Name implements connect.Codec.
func (Codec) Name() string { return CodecName }

// Marshal implements connect.Codec.
func (Codec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// Unmarshal implements connect.Codec. An empty body decodes to the zero
// message.
func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, msg)
}

// ErrorKind returns the error kind a teamsync server attached to err, or
// "" when err did not come from one.
func ErrorKind(err error) string {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return ""
	}
	return cerr.Meta().Get(ErrorKindHeader)
}
