package mailbox

import (
	"fmt"
	"io"
	"math"

	"github.com/edup2p/mailbox/types/bin"
)

// EnvelopeLen is the size of the header in front of every mailbox message:
// the destination thread as a big-endian int32, then the destination id as a big-endian uint64.
const EnvelopeLen = 4 + 8

func writeEnvelope(w io.Writer, thread int, id ID) error {
	if thread < math.MinInt32 || thread > math.MaxInt32 {
		return fmt.Errorf("thread %d does not fit in an envelope", thread)
	}

	if err := bin.WriteInt32(w, int32(thread)); err != nil {
		return err
	}

	return bin.WriteUint64(w, uint64(id))
}

func readEnvelope(r io.Reader) (thread int, id ID, err error) {
	t, err := bin.ReadInt32(r)
	if err != nil {
		return 0, 0, fmt.Errorf("reading thread: %w", err)
	}

	i, err := bin.ReadUint64(r)
	if err != nil {
		return 0, 0, fmt.Errorf("reading id: %w", err)
	}

	return int(t), ID(i), nil
}
