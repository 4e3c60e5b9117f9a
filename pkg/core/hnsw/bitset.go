package hnsw

// BitSet is the visited set of one traversal. Node ids are dense, so a bitmap
// sized to the graph beats a map.
type BitSet struct {
	buckets []uint64
}

// NewBitSet returns a set able to hold ids below capacity without growing.
func NewBitSet(capacity int32) *BitSet {
	if capacity < 0 {
		capacity = 0
	}
	return &BitSet{buckets: make([]uint64, (capacity>>6)+1)}
}

// Add marks id as visited. Negative ids are ignored.
func (bs *BitSet) Add(id int32) {
	if id < 0 {
		return
	}
	bucket := int(id >> 6)
	if bucket >= len(bs.buckets) {
		grown := make([]uint64, bucket+1)
		copy(grown, bs.buckets)
		bs.buckets = grown
	}
	bs.buckets[bucket] |= 1 << (uint32(id) & 63)
}

// Has reports whether id was added.
func (bs *BitSet) Has(id int32) bool {
	if id < 0 {
		return false
	}
	bucket := int(id >> 6)
	if bucket >= len(bs.buckets) {
		return false
	}
	return bs.buckets[bucket]&(1<<(uint32(id)&63)) != 0
}
