// Package archive holds wire codecs for values that ride along inside mailbox payloads.
package archive

import "io"

// OrderToken is a causal-ordering hint attached to some payloads.
//
// The ordering mechanism it belongs to does not exist yet. Until it does, the token is
// never put on the wire: writing one emits nothing, and reading one always yields
// IgnoreToken without consuming any bytes. Do not give it a real encoding without
// changing both sides of the protocol at once.
type OrderToken struct {
	bucket int
	value  int64
}

// IgnoreToken is the sentinel every deserialized OrderToken carries.
var IgnoreToken = OrderToken{bucket: -2, value: -1}

// IsIgnore reports whether tok is the IgnoreToken sentinel.
func (tok OrderToken) IsIgnore() bool {
	return tok == IgnoreToken
}

// WriteOrderToken writes tok to w, which is to say, nothing at all.
func WriteOrderToken(_ io.Writer, _ OrderToken) error {
	return nil
}

// ReadOrderToken reads an OrderToken from r without touching r.
func ReadOrderToken(_ io.Reader) (OrderToken, error) {
	return IgnoreToken, nil
}
