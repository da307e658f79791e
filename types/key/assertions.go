package key

// NODE

var (
	_ publicKey = NodePublic{}

	_ privateKey[NodePublic] = NodePrivate{}

	// We need this to exchange keys in handshakes and config files
	_ canTextMarshal = &NodePublic{}

	// We need this to persist node keys to disk.
	_ canTextMarshal = &NodePrivate{}
)
