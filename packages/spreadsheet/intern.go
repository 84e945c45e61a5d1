package spreadsheet

// internTable stores values once per key with reference counting. ids start
// at 1, 0 is never handed out so it can mean "none" in cell records.
type internTable[K comparable, V any] struct {
	ids       map[K]uint32
	keys      map[uint32]K
	values    map[uint32]V
	refCounts map[uint32]int
	nextID    uint32
}

func newInternTable[K comparable, V any]() *internTable[K, V] {
	return &internTable[K, V]{
		ids:       make(map[K]uint32),
		keys:      make(map[uint32]K),
		values:    make(map[uint32]V),
		refCounts: make(map[uint32]int),
		nextID:    1,
	}
}

// intern returns the id for key, adding a reference. build is only called
// when the key is new.
func (t *internTable[K, V]) intern(key K, build func() V) uint32 {
	if id, exists := t.ids[key]; exists {
		t.refCounts[id]++
		return id
	}

	id := t.nextID
	t.ids[key] = id
	t.keys[id] = key
	t.values[id] = build()
	t.refCounts[id] = 1
	t.nextID++

	return id
}

func (t *internTable[K, V]) get(id uint32) (V, bool) {
	v, exists := t.values[id]
	return v, exists
}

// retain adds a reference to an existing id
func (t *internTable[K, V]) retain(id uint32) bool {
	if _, exists := t.values[id]; !exists {
		return false
	}
	t.refCounts[id]++
	return true
}

// release drops a reference. returns true when that was the last one and the
// entry is gone.
func (t *internTable[K, V]) release(id uint32) bool {
	key, exists := t.keys[id]
	if !exists {
		return false
	}

	t.refCounts[id]--
	if t.refCounts[id] > 0 {
		return false
	}
	delete(t.ids, key)
	delete(t.keys, id)
	delete(t.values, id)
	delete(t.refCounts, id)
	return true
}

func (t *internTable[K, V]) refCount(id uint32) int {
	return t.refCounts[id]
}

func (t *internTable[K, V]) count() int {
	return len(t.values)
}

// StringTable interns the text values held by cells
type StringTable struct {
	table *internTable[string, string]
}

func NewStringTable() *StringTable {
	return &StringTable{table: newInternTable[string, string]()}
}

// Intern adds a reference to s and returns its id
func (st *StringTable) Intern(s string) uint32 {
	return st.table.intern(s, func() string { return s })
}

// GetString retrieves a string by its ID
func (st *StringTable) GetString(id uint32) (string, bool) {
	return st.table.get(id)
}

func (st *StringTable) AddReference(id uint32) bool {
	return st.table.retain(id)
}

func (st *StringTable) RemoveReference(id uint32) bool {
	return st.table.release(id)
}

// Count returns the number of distinct strings held
func (st *StringTable) Count() int {
	return st.table.count()
}
