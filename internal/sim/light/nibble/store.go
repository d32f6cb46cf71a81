package nibble

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ArraySize is the byte length of one section's 4 bit/voxel payload.
const ArraySize = 16 * 16 * 16 / 2

type State uint8

const (
	// Null: the section does not exist for this channel. Writes are dropped.
	Null State = iota
	// Uninitialized: conceptually all zero, no buffer allocated yet.
	Uninitialized
	// Initialized: backed by a real buffer.
	Initialized
)

func (s State) String() string {
	switch s {
	case Null:
		return "null"
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

var ErrBadPayload = errors.New("nibble: bad payload")

type snapshot struct {
	state State
	data  []byte // immutable once published
}

// Store is a single-writer/multi-reader nibble array for one 16³ section.
//
// The updating side (Get, Set, Set* transitions) belongs to whichever engine
// currently holds the chunk and is not synchronized. Readers use GetVisible,
// which reads an immutable snapshot swapped in by Publish.
type Store struct {
	state  State
	data   []byte
	shared bool // data is referenced by the visible snapshot
	dirty  bool

	visible atomic.Pointer[snapshot]
}

func NewNull() *Store {
	s := &Store{state: Null}
	s.visible.Store(&snapshot{state: Null})
	return s
}

func NewUninitialized() *Store {
	s := &Store{state: Uninitialized}
	s.visible.Store(&snapshot{state: Uninitialized})
	return s
}

// NewInitialized wraps buf, which must be exactly ArraySize bytes long. The
// buffer is shared by both sides until the first write.
func NewInitialized(buf []byte) *Store {
	if len(buf) != ArraySize {
		panic(fmt.Sprintf("nibble: buffer length %d, want %d", len(buf), ArraySize))
	}
	s := &Store{state: Initialized, data: buf, shared: true}
	s.visible.Store(&snapshot{state: Initialized, data: buf})
	return s
}

func getNibble(b []byte, i int) int {
	return int(b[i>>1]>>(uint(i&1)<<2)) & 0xF
}

// Get reads the updating side.
func (s *Store) Get(index int) int {
	if s.state != Initialized {
		return 0
	}
	return getNibble(s.data, index)
}

// GetVisible reads the last published snapshot. Safe for concurrent use.
func (s *Store) GetVisible(index int) int {
	snap := s.visible.Load()
	if snap.state != Initialized {
		return 0
	}
	return getNibble(snap.data, index)
}

// Set writes level at index. The first write after a publish copies the shared
// buffer into a private one taken from pool.
func (s *Store) Set(pool *Pool, index, level int) {
	if level < 0 || level > 15 {
		panic(fmt.Sprintf("nibble: level %d out of range", level))
	}
	switch s.state {
	case Null:
		return
	case Uninitialized:
		if level == 0 {
			return
		}
		s.data = pool.getZero()
		s.shared = false
		s.state = Initialized
	case Initialized:
		if getNibble(s.data, index) == level {
			return
		}
		if s.shared {
			b := pool.get()
			copy(b, s.data)
			s.data = b
			s.shared = false
		}
	}
	shift := uint(index&1) << 2
	i := index >> 1
	s.data[i] = s.data[i]&^(0xF<<shift) | byte(level)<<shift
	s.dirty = true
}

// Publish makes the updating side visible. It reports whether anything was
// published.
func (s *Store) Publish() bool {
	if !s.dirty {
		return false
	}
	snap := &snapshot{state: s.state}
	if s.state == Initialized {
		snap.data = s.data
		s.shared = true
	}
	s.visible.Store(snap)
	s.dirty = false
	return true
}

func (s *Store) release(pool *Pool) {
	if s.data != nil && !s.shared {
		pool.put(s.data)
	}
	s.data = nil
	s.shared = false
}

// private returns a buffer the updating side may overwrite completely.
func (s *Store) private(pool *Pool) []byte {
	if s.data != nil && !s.shared {
		return s.data
	}
	s.data = pool.get()
	s.shared = false
	return s.data
}

func (s *Store) SetNull(pool *Pool) {
	if s.state == Null {
		return
	}
	s.release(pool)
	s.state = Null
	s.dirty = true
}

func (s *Store) SetUninitialized(pool *Pool) {
	if s.state == Uninitialized {
		return
	}
	s.release(pool)
	s.state = Uninitialized
	s.dirty = true
}

// SetZero initializes the store with an all-zero buffer.
func (s *Store) SetZero(pool *Pool) {
	if s.state == Initialized && s.IsAllZero() {
		return
	}
	clear(s.private(pool))
	s.state = Initialized
	s.dirty = true
}

// SetFull initializes the store with every voxel at level 15.
func (s *Store) SetFull(pool *Pool) {
	if s.IsAllFull() {
		return
	}
	b := s.private(pool)
	for i := range b {
		b[i] = 0xFF
	}
	s.state = Initialized
	s.dirty = true
}

func (s *Store) IsAllZero() bool {
	if s.state != Initialized {
		return true
	}
	for _, b := range s.data {
		if b != 0 {
			return false
		}
	}
	return true
}

func (s *Store) IsAllFull() bool {
	if s.state != Initialized {
		return false
	}
	for _, b := range s.data {
		if b != 0xFF {
			return false
		}
	}
	return true
}

func (s *Store) IsDirty() bool { return s.dirty }

func (s *Store) UpdatingState() State { return s.state }
func (s *Store) VisibleState() State  { return s.visible.Load().state }

func (s *Store) IsNullUpdating() bool          { return s.state == Null }
func (s *Store) IsUninitializedUpdating() bool { return s.state == Uninitialized }
func (s *Store) IsInitializedUpdating() bool   { return s.state == Initialized }
func (s *Store) IsNullVisible() bool           { return s.VisibleState() == Null }
func (s *Store) IsUninitializedVisible() bool  { return s.VisibleState() == Uninitialized }
func (s *Store) IsInitializedVisible() bool    { return s.VisibleState() == Initialized }

// Persisted is the save form of a store: a state tag and, for Initialized
// stores, the raw payload.
type Persisted struct {
	State State
	Data  []byte
}

// Save captures the visible side.
func (s *Store) Save() Persisted {
	snap := s.visible.Load()
	p := Persisted{State: snap.state}
	if snap.state == Initialized {
		p.Data = append([]byte(nil), snap.data...)
	}
	return p
}

// Restore replaces both sides with p. It must not race with a writer.
func (s *Store) Restore(pool *Pool, p Persisted) error {
	switch p.State {
	case Null, Uninitialized:
		if len(p.Data) != 0 {
			return fmt.Errorf("%w: %s store with %d bytes", ErrBadPayload, p.State, len(p.Data))
		}
		s.release(pool)
		s.state = p.State
		s.visible.Store(&snapshot{state: p.State})
	case Initialized:
		if len(p.Data) != ArraySize {
			return fmt.Errorf("%w: payload length %d, want %d", ErrBadPayload, len(p.Data), ArraySize)
		}
		s.release(pool)
		s.data = append([]byte(nil), p.Data...)
		s.shared = true
		s.state = Initialized
		s.visible.Store(&snapshot{state: Initialized, data: s.data})
	default:
		return fmt.Errorf("%w: unknown state %d", ErrBadPayload, p.State)
	}
	s.dirty = false
	return nil
}

// FromPersisted builds a store from a saved payload.
func FromPersisted(p Persisted) (*Store, error) {
	s := NewNull()
	if err := s.Restore(nil, p); err != nil {
		return nil, err
	}
	return s, nil
}
