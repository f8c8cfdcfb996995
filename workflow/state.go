package workflow

import "fmt"

// MergeRule declares how a single state field combines an existing value with an
// incoming sparse update, per spec §3.2.
type MergeRule int

const (
	// MergeReplace overwrites the old value with the new one (default).
	MergeReplace MergeRule = iota

	// MergeAppend concatenates a sequence-typed field: old ++ new, order preserved,
	// not de-duplicated. Only valid on slice-typed fields (AGSR001).
	MergeAppend

	// MergeMap merges a mapping-typed field: new keys are added, colliding keys take
	// the new value. Only valid on map-typed fields (AGSR002).
	MergeMap
)

// FieldDescriptor binds a named state field to its merge rule and accessor closures.
// This is the runtime "registry of field descriptors" option from spec §9 Design
// Notes: rather than generating reducers via reflection or codegen at build time, a
// schema registers one descriptor per field once, and StateSchema.Reduce interprets
// them at runtime. Get/Set operate on the sparse update value, so a field absent from
// an update must be represented by the type's zero value.
type FieldDescriptor[S any] struct {
	// Name identifies the field for diagnostics and ledger fingerprints.
	Name string

	// Merge is the declared merge rule for this field.
	Merge MergeRule

	// Present reports whether the update actually sets this field (sparse-update
	// semantics): a field not present in the update is left unchanged in the
	// accumulated state, even if Merge is MergeReplace.
	Present func(update S) bool

	// Get reads the field's current value off a state value.
	Get func(s S) any

	// Set returns a copy of s with the field set to v.
	Set func(s S, v any) S

	// IsSequence/IsMapping are used by RegisterSchema to enforce AGSR001/AGSR002 at
	// registration time: MergeAppend only applies to sequence-typed fields and
	// MergeMap only applies to mapping-typed fields.
	IsSequence bool
	IsMapping  bool
}

// StateSchema is a registered, validated set of field descriptors for a state type S.
// It is built once (typically at program init, mirroring the immutability of a
// WorkflowDefinition per spec §3.6) and interpreted by Reduce on every tick.
type StateSchema[S any] struct {
	id     string
	fields []FieldDescriptor[S]
}

// RegisterSchema validates field descriptors against AGSR001/AGSR002 and returns an
// immutable StateSchema. AGSR001: append mergers only apply to sequence-typed fields.
// AGSR002: merge mergers only apply to mapping-typed fields. Both are fatal schema
// errors, returned eagerly so a misconfigured schema never reaches Run.
func RegisterSchema[S any](id string, fields ...FieldDescriptor[S]) (*StateSchema[S], error) {
	for _, f := range fields {
		switch f.Merge {
		case MergeAppend:
			if !f.IsSequence {
				return nil, fmt.Errorf("%w: AGSR001: field %q declares append merge but is not sequence-typed", ErrGraphInvalid, f.Name)
			}
		case MergeMap:
			if !f.IsMapping {
				return nil, fmt.Errorf("%w: AGSR002: field %q declares merge merge but is not mapping-typed", ErrGraphInvalid, f.Name)
			}
		}
	}
	cp := make([]FieldDescriptor[S], len(fields))
	copy(cp, fields)
	return &StateSchema[S]{id: id, fields: cp}, nil
}

// ID returns the schema identifier referenced by a WorkflowDefinition's StateSchema field.
func (s *StateSchema[S]) ID() string { return s.id }

// Reduce applies update onto prev per each field's declared merge rule, honoring
// sparse-update semantics (a field absent from update is left unchanged) and the
// associativity property required for event-sourced replay (spec §4.2, §8):
//
//	reduce(reduce(s, u1), u2) == reduce(s, merge(u1, u2))
//
// for append/merge fields, where merge is itself left-associative and order-sensitive.
// This holds because each field is combined independently and MergeAppend/MergeMap
// are themselves associative operations (concatenation and key-union respectively).
func (s *StateSchema[S]) Reduce(prev, update S) S {
	next := prev
	for _, f := range s.fields {
		if !f.Present(update) {
			continue
		}
		switch f.Merge {
		case MergeReplace:
			next = f.Set(next, f.Get(update))
		case MergeAppend:
			next = f.Set(next, appendSequence(f.Get(next), f.Get(update)))
		case MergeMap:
			next = f.Set(next, mergeMapping(f.Get(next), f.Get(update)))
		}
	}
	return next
}

// appendSequence concatenates two slices represented as any, preserving order and
// performing no de-duplication, per spec §3.2.
func appendSequence(old, delta any) any {
	switch o := old.(type) {
	case []string:
		d, _ := delta.([]string)
		out := make([]string, 0, len(o)+len(d))
		out = append(out, o...)
		out = append(out, d...)
		return out
	case []any:
		d, _ := delta.([]any)
		out := make([]any, 0, len(o)+len(d))
		out = append(out, o...)
		out = append(out, d...)
		return out
	default:
		// Unknown concrete slice type: fall back to returning the new value verbatim
		// is wrong for append semantics, so callers should use AppendSlice[T] below
		// for typed slices instead of routing through `any`.
		return delta
	}
}

// mergeMapping merges two map[string]any values, with delta's keys winning on
// collision, per spec §3.2.
func mergeMapping(old, delta any) any {
	o, _ := old.(map[string]any)
	d, _ := delta.(map[string]any)
	out := make(map[string]any, len(o)+len(d))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range d {
		out[k] = v
	}
	return out
}

// AppendSlice concatenates two typed slices, for use inside a FieldDescriptor.Set
// when S's field is a concrete slice type rather than []any. Field descriptors for
// typed slices should call this directly instead of routing through appendSequence.
func AppendSlice[T any](old, delta []T) []T {
	out := make([]T, 0, len(old)+len(delta))
	out = append(out, old...)
	out = append(out, delta...)
	return out
}

// MergeMapTyped merges two typed maps with delta's keys winning on collision, for use
// inside a FieldDescriptor.Set when S's field is a concrete map type.
func MergeMapTyped[K comparable, V any](old, delta map[K]V) map[K]V {
	out := make(map[K]V, len(old)+len(delta))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// Reducer is the function form of StateSchema.Reduce, matching the teacher's
// `Reducer[S] func(prev, delta S) S` shape so hand-written reducers (for state types
// that don't need the descriptor registry) remain a drop-in alternative.
type Reducer[S any] func(prev, update S) S

// AsReducer adapts a StateSchema into a plain Reducer function, for Engine
// construction call sites that prefer the functional form.
func (s *StateSchema[S]) AsReducer() Reducer[S] {
	return s.Reduce
}
