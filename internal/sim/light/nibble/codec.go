package nibble

import (
	"fmt"

	"voxelcraft.ai/lumen/internal/sim/encoding"
)

// EncodeText returns the RLE text form of p's payload; empty for stores
// without a buffer.
func (p Persisted) EncodeText() string {
	if p.State != Initialized {
		return ""
	}
	return encoding.EncodeRLE(p.Data)
}

// DecodeText rebuilds a Persisted value from a state tag and EncodeText output.
func DecodeText(state State, text string) (Persisted, error) {
	switch state {
	case Null, Uninitialized:
		if text != "" {
			return Persisted{}, fmt.Errorf("%w: %s store carries data", ErrBadPayload, state)
		}
		return Persisted{State: state}, nil
	case Initialized:
		data, err := encoding.DecodeRLE[byte](text, ArraySize)
		if err != nil {
			return Persisted{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return Persisted{State: Initialized, Data: data}, nil
	default:
		return Persisted{}, fmt.Errorf("%w: unknown state %d", ErrBadPayload, state)
	}
}

// Level reads one voxel from a persisted payload.
func (p Persisted) Level(index int) int {
	if p.State != Initialized || len(p.Data) != ArraySize {
		return 0
	}
	return getNibble(p.Data, index)
}
