package tags

import (
	"math/bits"
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// Fixed hands out one constant tag per class. It is only unique while at most one
// operation is outstanding, which is the driver's default discipline.
type Fixed struct{}

func (Fixed) Allocate(class Class) Tag {
	return Pack(class, 0)
}

func (Fixed) Release(Tag) {}

// NewMonotonic returns an allocator whose sequence increases with every allocation.
func NewMonotonic() *Monotonic {
	return &Monotonic{}
}

type Monotonic struct {
	seq atomic.Uint64
}

func (m *Monotonic) Allocate(class Class) Tag {
	return Pack(class, m.seq.Add(1))
}

func (m *Monotonic) Release(Tag) {}

// NewRandomized returns an allocator drawing random sequences, re-drawing on collision
// with a tag that is still outstanding.
func NewRandomized() *Randomized {
	return &Randomized{
		outstanding: make(map[Tag]struct{}),
	}
}

type Randomized struct {
	mu          sync.Mutex
	outstanding map[Tag]struct{}
}

func (r *Randomized) Allocate(class Class) Tag {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		tag := Pack(class, rand.Uint64())
		if tag.Sequence() == 0 {
			continue
		}
		if _, used := r.outstanding[tag]; used {
			continue
		}
		r.outstanding[tag] = struct{}{}
		return tag
	}
}

func (r *Randomized) Release(tag Tag) {
	r.mu.Lock()
	delete(r.outstanding, tag)
	r.mu.Unlock()
}

// NewArena
// 创建一个固定槽位的分配器，槽位用完后 Allocate 返回 None。
func NewArena(slots int) *Arena {
	if slots < 1 {
		slots = 1
	}
	return &Arena{
		slots: slots,
		used:  make([]uint64, (slots+63)/64),
	}
}

// Arena reuses a small set of slot indices. A tag's sequence is its slot index plus one.
type Arena struct {
	mu          sync.Mutex
	slots       int
	used        []uint64
	outstanding int
}

func (a *Arena) Allocate(class Class) Tag {
	a.mu.Lock()
	defer a.mu.Unlock()
	for w, word := range a.used {
		if word == ^uint64(0) {
			continue
		}
		i := bits.TrailingZeros64(^word)
		slot := w*64 + i
		if slot >= a.slots {
			break
		}
		a.used[w] |= 1 << i
		a.outstanding++
		return Pack(class, uint64(slot)+1)
	}
	return None
}

func (a *Arena) Release(tag Tag) {
	seq := tag.Sequence()
	if seq == 0 || seq > uint64(a.slots) {
		return
	}
	slot := int(seq - 1)
	a.mu.Lock()
	if a.used[slot/64]&(1<<(slot%64)) != 0 {
		a.used[slot/64] &^= 1 << (slot % 64)
		a.outstanding--
	}
	a.mu.Unlock()
}

// Outstanding reports how many slots are currently allocated.
func (a *Arena) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outstanding
}
