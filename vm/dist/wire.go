package dist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode encodes canonically so equal snapshots produce equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalSnapshot serializes a HeapSnapshot to CBOR bytes.
func MarshalSnapshot(s *HeapSnapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a HeapSnapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*HeapSnapshot, error) {
	var s HeapSnapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("dist: unmarshal snapshot: %w", err)
	}
	return &s, nil
}

// MarshalCollectResponse serializes a CollectResponse to CBOR bytes.
func MarshalCollectResponse(r *CollectResponse) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalCollectResponse deserializes a CollectResponse from CBOR bytes.
func UnmarshalCollectResponse(data []byte) (*CollectResponse, error) {
	var r CollectResponse
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal collect response: %w", err)
	}
	return &r, nil
}

// ---------------------------------------------------------------------------
// Codec: connect transport encoding
// ---------------------------------------------------------------------------

// CodecName is the connect codec name, used as the content subtype.
const CodecName = "cbor"

// CollectorServiceName is the service hosting remote collectors.
const CollectorServiceName = "chainsaw.gc.v1.CollectorService"

// CollectProcedure is the unary procedure that marks a CollectRequest.
const CollectProcedure = "/" + CollectorServiceName + "/Collect"

// Codec carries plain Go message structs over connect as CBOR. It
// implements connect.Codec.
type Codec struct{}

// Name returns CodecName.
func (Codec) Name() string { return CodecName }

// Marshal encodes msg canonically.
func (Codec) Marshal(msg any) ([]byte, error) {
	return cborEncMode.Marshal(msg)
}

// Unmarshal decodes data into msg, which must be a pointer.
func (Codec) Unmarshal(data []byte, msg any) error {
	if err := cbor.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("dist: unmarshal %T: %w", msg, err)
	}
	return nil
}
