package vm

import "sort"

// ---------------------------------------------------------------------------
// Object: Field map stored in a heap slot
// ---------------------------------------------------------------------------

// Object maps field ids to values. Fields come into existence on first
// assignment; reading an absent field yields Nil.
type Object struct {
	fields map[uint32]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[uint32]Value)}
}

// Get returns the field value, or Nil when the field was never set.
func (o *Object) Get(fid uint32) Value {
	return o.fields[fid]
}

// Lookup returns the field value and whether it has been set.
func (o *Object) Lookup(fid uint32) (Value, bool) {
	v, ok := o.fields[fid]
	return v, ok
}

// Set writes a field, creating it if necessary.
func (o *Object) Set(fid uint32, v Value) {
	o.fields[fid] = v
}

// Len returns the number of fields.
func (o *Object) Len() int {
	return len(o.fields)
}

// FieldIDs returns the ids of all set fields in ascending order.
func (o *Object) FieldIDs() []uint32 {
	ids := make([]uint32, 0, len(o.fields))
	for id := range o.fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
