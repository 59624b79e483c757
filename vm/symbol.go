package vm

// ---------------------------------------------------------------------------
// Interner: Deduplicated string literals
// ---------------------------------------------------------------------------

// Interner maps strings to stable 32-bit ids. Ids are assigned in insertion
// order and never reused for the lifetime of the Runtime.
//
// Not safe for concurrent use; callers serialize access through the
// runtime (see server.RuntimeWorker).
type Interner struct {
	byName map[string]uint32 // string -> ID
	byID   []string          // ID -> string
}

// NewInterner creates an empty interner.
func NewInterner() *Interner {
	return &Interner{
		byName: make(map[string]uint32),
		byID:   make([]string, 0, 64),
	}
}

// Intern returns the id for s, appending it if it is new.
func (in *Interner) Intern(s string) uint32 {
	if id, ok := in.byName[s]; ok {
		return id
	}
	id := uint32(len(in.byID))
	in.byName[s] = id
	in.byID = append(in.byID, s)
	return id
}

// Lookup returns the id for s without interning it.
func (in *Interner) Lookup(s string) (uint32, bool) {
	id, ok := in.byName[s]
	return id, ok
}

// Get returns the string for id, or "" if id was never issued.
func (in *Interner) Get(id uint32) string {
	if int(id) >= len(in.byID) {
		return ""
	}
	return in.byID[id]
}

// Len returns the number of interned strings.
func (in *Interner) Len() int {
	return len(in.byID)
}

// All returns all strings in id order.
func (in *Interner) All() []string {
	result := make([]string, len(in.byID))
	copy(result, in.byID)
	return result
}

// ---------------------------------------------------------------------------
// FieldTable: Runtime-wide field ids
// ---------------------------------------------------------------------------

// FieldTable assigns monotonic ids to field names the first time each
// name is seen.
type FieldTable struct {
	byName map[string]uint32
	byID   []string
}

// NewFieldTable creates an empty field table.
func NewFieldTable() *FieldTable {
	return &FieldTable{byName: make(map[string]uint32)}
}

// ID returns the id for name, assigning the next id if name is new.
func (ft *FieldTable) ID(name string) uint32 {
	if id, ok := ft.byName[name]; ok {
		return id
	}
	id := uint32(len(ft.byID))
	ft.byName[name] = id
	ft.byID = append(ft.byID, name)
	return id
}

// Lookup returns the id for name without assigning one.
func (ft *FieldTable) Lookup(name string) (uint32, bool) {
	id, ok := ft.byName[name]
	return id, ok
}

// Name returns the field name for id, or "" if unknown.
func (ft *FieldTable) Name(id uint32) string {
	if int(id) >= len(ft.byID) {
		return ""
	}
	return ft.byID[id]
}

// Len returns the number of assigned field ids.
func (ft *FieldTable) Len() int {
	return len(ft.byID)
}

// All returns all field names in id order.
func (ft *FieldTable) All() []string {
	result := make([]string, len(ft.byID))
	copy(result, ft.byID)
	return result
}
