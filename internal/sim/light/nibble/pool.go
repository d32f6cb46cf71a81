package nibble

// Pool recycles private 2048 byte buffers for one worker. It is not safe for
// concurrent use: every propagation engine owns its own Pool, so a buffer is
// always returned to the pool of the worker that was writing it.
type Pool struct {
	free  [][]byte
	limit int

	gets   uint64
	puts   uint64
	allocs uint64
}

func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = 64
	}
	return &Pool{limit: limit}
}

// get returns a buffer of ArraySize bytes with undefined contents.
func (p *Pool) get() []byte {
	if p == nil {
		return make([]byte, ArraySize)
	}
	p.gets++
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return b
	}
	p.allocs++
	return make([]byte, ArraySize)
}

func (p *Pool) getZero() []byte {
	b := p.get()
	clear(b)
	return b
}

func (p *Pool) put(b []byte) {
	if p == nil || len(b) != ArraySize || len(p.free) >= p.limit {
		return
	}
	p.puts++
	p.free = append(p.free, b)
}

// PoolStats reports buffer traffic, used by tests and the CLI.
type PoolStats struct {
	Gets, Puts, Allocs uint64
	Free               int
}

func (p *Pool) Stats() PoolStats {
	if p == nil {
		return PoolStats{}
	}
	return PoolStats{Gets: p.gets, Puts: p.puts, Allocs: p.allocs, Free: len(p.free)}
}
