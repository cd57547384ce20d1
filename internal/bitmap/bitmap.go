// Package bitmap is a fixed-size bitset over row positions. The profiler
// keeps one per column to mark null cells and unions them to count rows with
// any null.
package bitmap

import "math/bits"

// Bitmap holds bits for positions [0, Len()).
type Bitmap struct {
	n    int
	data []uint64
}

// New allocates a bitmap for n positions. n <= 0 gives an empty set.
func New(n int) *Bitmap {
	if n <= 0 {
		return &Bitmap{}
	}
	return &Bitmap{n: n, data: make([]uint64, (n+63)/64)}
}

// Len returns the number of addressable positions.
func (b *Bitmap) Len() int { return b.n }

// Add sets position i. Out-of-range positions are ignored.
func (b *Bitmap) Add(i int) {
	if i < 0 || i >= b.n {
		return
	}
	b.data[i/64] |= 1 << uint(i%64)
}

// Has reports whether position i is set.
func (b *Bitmap) Has(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.data[i/64]&(1<<uint(i%64)) != 0
}

// Or sets every position that is set in other. Positions beyond b's length
// are ignored.
func (b *Bitmap) Or(other *Bitmap) {
	for w := 0; w < len(b.data) && w < len(other.data); w++ {
		b.data[w] |= other.data[w]
	}
	b.clearTail()
}

// Count returns the number of set positions.
func (b *Bitmap) Count() int {
	n := 0
	for _, w := range b.data {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b *Bitmap) clearTail() {
	if r := b.n % 64; r != 0 && len(b.data) > 0 {
		b.data[len(b.data)-1] &= (1 << uint(r)) - 1
	}
}
