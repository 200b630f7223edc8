package types

import "github.com/vmihailenco/msgpack/v4"

// Marshal encodes v using the wire codec shared by all consensus-critical types.
// It replaces the code-generated "Cramberry" marshaler the original types relied on:
// every concrete type's MarshalCramberry()/UnmarshalCramberry() method pair becomes a
// call through Marshal/Unmarshal instead.
func Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal decodes data into v using the wire codec shared by all consensus-critical
// types.
func Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}
