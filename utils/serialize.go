package utils

import (
	"bytes"
	"encoding/json"
)

// Serialize encodes o as compact JSON. HTML characters are kept as is so
// transmission paths like "cut -> supply" stay readable in the store.
func Serialize(o any) ([]byte, error) {
	return encode(o, "")
}

// SerializeIndent is Serialize with two space indentation.
func SerializeIndent(o any) ([]byte, error) {
	return encode(o, "  ")
}

func encode(o any, indent string) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func Unserialize(b []byte, o any) error {
	return json.Unmarshal(b, o)
}
