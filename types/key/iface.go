package key

import (
	"encoding"
)

type key interface {
	IsZero() bool
}

type canTextMarshal interface {
	// We need text encoding for JSON and config files

	encoding.TextMarshaler
	encoding.TextUnmarshaler
}

type publicKey interface {
	key

	IsZero() bool
	Debug() string
	HexString() string
}

type privateKey[Pub key] interface {
	key

	Public() Pub
}
