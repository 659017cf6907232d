package commsutil

import "encoding/json"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target. Numbers decode
// as float64 unless the target says otherwise.
func DecodePayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
