package object

// Handle encodes a 32-bit slot index in the lower bits and a 32-bit generation
// in the upper bits. Invalidation bumps the slot generation, so every handle
// issued before it stops resolving.
type Handle uint64

func NewHandle(index uint32, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(index))
}

func (h Handle) Index() uint32      { return uint32(h) }
func (h Handle) Generation() uint32 { return uint32(h >> 32) }
func (h Handle) IsZero() bool       { return h == 0 }

type slot struct {
	obj any
	uid Uid
}

// Registry is the slot arena backing weak references. Generation 0 is
// reserved so the zero Handle never resolves.
//
// Not safe for concurrent use; the scene thread owns it.
type Registry struct {
	generations []uint32
	slots       []slot
	freeList    []uint32
	byUid       map[Uid]Handle
	live        int
}

func NewRegistry() *Registry {
	return &Registry{
		generations: make([]uint32, 0, 1024),
		slots:       make([]slot, 0, 1024),
		freeList:    make([]uint32, 0, 256),
		byUid:       make(map[Uid]Handle, 1024),
	}
}

// Allocate stores obj in a fresh or recycled slot and returns its live handle.
func (r *Registry) Allocate(obj any, uid Uid) Handle {
	var idx uint32
	if n := len(r.freeList); n > 0 {
		idx = r.freeList[n-1]
		r.freeList = r.freeList[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
		r.generations = append(r.generations, 1)
	}
	r.slots[idx] = slot{obj: obj, uid: uid}
	h := NewHandle(idx, r.generations[idx])
	if !uid.IsNull() {
		r.byUid[uid] = h
	}
	r.live++
	return h
}

func (r *Registry) Alive(h Handle) bool {
	idx := h.Index()
	if h.IsZero() || int(idx) >= len(r.generations) {
		return false
	}
	return r.generations[idx] == h.Generation()
}

// Resolve returns the object behind h, or false once h has been invalidated.
func (r *Registry) Resolve(h Handle) (any, bool) {
	if !r.Alive(h) {
		return nil, false
	}
	return r.slots[h.Index()].obj, true
}

// Find looks up a live object by its Uid.
func (r *Registry) Find(uid Uid) (any, bool) {
	h, ok := r.byUid[uid]
	if !ok {
		return nil, false
	}
	return r.Resolve(h)
}

// Invalidate kills h. It reports false if h was already dead (stale reference).
func (r *Registry) Invalidate(h Handle) bool {
	if !r.Alive(h) {
		return false
	}
	idx := h.Index()
	if uid := r.slots[idx].uid; !uid.IsNull() {
		delete(r.byUid, uid)
	}
	r.slots[idx] = slot{}
	r.generations[idx]++
	if r.generations[idx] == 0 {
		// wrapped; retire the slot instead of handing out generation 0
		r.live--
		return true
	}
	r.freeList = append(r.freeList, idx)
	r.live--
	return true
}

// Len returns the number of live slots.
func (r *Registry) Len() int { return r.live }
