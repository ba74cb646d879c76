package margin

// SystemType is a resolved catalog entry: the stored type behind a symbolic
// key and the plan field its lines track.
type SystemType struct {
	Key        string
	TypeID     string
	CostSource CostField
}

// Registry maps symbolic keys to stored margin types. It is built once at
// startup and never mutated afterwards.
type Registry struct {
	entries []SystemType
	byType  map[string]SystemType
	byKey   map[string]SystemType
}

// NewRegistry builds a registry from resolved entries, preserving their order.
func NewRegistry(entries []SystemType) *Registry {
	r := &Registry{
		entries: make([]SystemType, len(entries)),
		byType:  make(map[string]SystemType, len(entries)),
		byKey:   make(map[string]SystemType, len(entries)),
	}
	copy(r.entries, entries)
	for _, e := range entries {
		r.byType[e.TypeID] = e
		r.byKey[e.Key] = e
	}
	return r
}

// Entries returns the registered system types in catalog order.
func (r *Registry) Entries() []SystemType {
	out := make([]SystemType, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry) ByKey(key string) (SystemType, bool) {
	e, ok := r.byKey[key]
	return e, ok
}

func (r *Registry) ByType(typeID string) (SystemType, bool) {
	e, ok := r.byType[typeID]
	return e, ok
}

// IsSystemType reports whether typeID belongs to a registered category.
func (r *Registry) IsSystemType(typeID string) bool {
	_, ok := r.byType[typeID]
	return ok
}

// BySource returns the categories bound to a plan cost-source field.
func (r *Registry) BySource(field CostField) []SystemType {
	var out []SystemType
	for _, e := range r.entries {
		if e.CostSource == field {
			out = append(out, e)
		}
	}
	return out
}
