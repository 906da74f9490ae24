package types

import (
	"fmt"
	"sort"
	"strings"
)

// specialValue is a marker used to distinguish engine-level sentinel values
// from ordinary field values.
type specialValue int

// SpecialValueNull explicitly nullifies a field. Setting a relationship
// segment to it produces a nullified placeholder record instead of removing
// the path.
const SpecialValueNull specialValue = 1

// Record is a mutable, typed bag of field values keyed by field API name.
// A record may be unsaved (no identifier) or persisted (identifier assigned
// on first save).
type Record struct {
	typ    *Type
	values map[string]any

	// nullified marks a placeholder created by assigning SpecialValueNull to
	// a relationship field: the referenced record is explicitly "no record"
	// rather than merely unfetched.
	nullified bool
}

// NewRecord creates an empty record of the given type.
func NewRecord(t *Type) *Record {
	return &Record{typ: t, values: make(map[string]any)}
}

// Type returns the record's type.
func (r *Record) Type() *Type {
	return r.typ
}

// ID returns the record identifier, or NilKID for unsaved records.
func (r *Record) ID() KID {
	v, ok := r.values[IDField]
	if !ok {
		return NilKID
	}
	id, ok := v.(KID)
	if !ok {
		return NilKID
	}
	return id
}

// SetID assigns the record identifier.
func (r *Record) SetID(id KID) {
	r.values[IDField] = id
}

// IsNullified reports whether the record is an explicit null placeholder for
// a referenced record.
func (r *Record) IsNullified() bool {
	return r.nullified
}

// SetField assigns a value to a possibly-dotted field path. Intermediate
// relationship segments are materialized as nested stub records; a resolver
// is required for dotted paths so stub records get their proper type.
// Assigning SpecialValueNull to a relationship path nullifies the referenced
// record.
func (r *Record) SetField(path string, value any, resolver TypeResolver) error {
	head, rest, nested := splitPath(path)
	f, ok := r.typ.Field(head)
	if !ok {
		return fmt.Errorf("%w: %s on type %s", ErrNoSuchField, head, r.typ.QualifiedName())
	}

	if !nested {
		if value == SpecialValueNull {
			if f.IsRelationship() {
				child := NewRecord(r.refType(f, resolver))
				child.nullified = true
				r.values[head] = child
				return nil
			}
			r.values[head] = nil
			return nil
		}
		if err := checkValue(f, value); err != nil {
			return err
		}
		// assigning a record to a reference field stores the record itself
		r.values[head] = value
		return nil
	}

	if !f.IsRelationship() {
		return fmt.Errorf("%w: segment %s of path %s on type %s is not a relationship", ErrNoSuchField, head, path, r.typ.QualifiedName())
	}
	child, ok := r.values[head].(*Record)
	if !ok || child == nil {
		refType := r.refType(f, resolver)
		if refType == nil {
			return fmt.Errorf("cannot resolve related type of field %s without a type resolver", head)
		}
		child = NewRecord(refType)
		r.values[head] = child
	}
	// setting a value through a nullified placeholder revives it
	if child.nullified && value != SpecialValueNull {
		child.nullified = false
	}
	return child.SetField(rest, value, resolver)
}

func (r *Record) refType(f *Field, resolver TypeResolver) *Type {
	if resolver == nil {
		return nil
	}
	t, ok := resolver.Type(f.DataType.RefTypeID)
	if !ok {
		return nil
	}
	return t
}

// GetField reads a possibly-dotted field path. Reading a field that was
// neither set nor selected by the query that produced the record returns
// ErrFieldNotSet, which is distinct from a field explicitly holding null.
func (r *Record) GetField(path string) (any, error) {
	head, rest, nested := splitPath(path)
	if _, ok := r.typ.Field(head); !ok {
		return nil, fmt.Errorf("%w: %s on type %s", ErrNoSuchField, head, r.typ.QualifiedName())
	}
	v, ok := r.values[head]
	if !ok {
		return nil, fmt.Errorf("%w: %s on type %s", ErrFieldNotSet, head, r.typ.QualifiedName())
	}
	if !nested {
		if child, isRecord := v.(*Record); isRecord && child != nil && child.nullified {
			return nil, nil
		}
		return v, nil
	}
	if v == nil {
		// the referenced record itself is null, so every nested path is null
		return nil, nil
	}
	child, isRecord := v.(*Record)
	if !isRecord {
		return nil, fmt.Errorf("%w: %s on type %s is not a nested record", ErrFieldNotSet, head, r.typ.QualifiedName())
	}
	if child.nullified {
		return nil, nil
	}
	return child.GetField(rest)
}

// IsSet reports whether the path holds a value (including an explicit null).
func (r *Record) IsSet(path string) bool {
	head, rest, nested := splitPath(path)
	v, ok := r.values[head]
	if !ok {
		return false
	}
	if !nested {
		return true
	}
	child, isRecord := v.(*Record)
	if !isRecord || child == nil {
		return false
	}
	return child.IsSet(rest)
}

// FieldNames returns the API names of all directly set fields, sorted.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.values))
	for name := range r.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AccessType returns the record's access type, defaulting to AccessPublic.
func (r *Record) AccessType() RecordAccessType {
	v, ok := r.values[AccessTypeField]
	if !ok || v == nil {
		return AccessPublic
	}
	switch at := v.(type) {
	case RecordAccessType:
		return at
	case int:
		return RecordAccessType(at)
	case int64:
		return RecordAccessType(at)
	}
	return AccessPublic
}

func splitPath(path string) (head, rest string, nested bool) {
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		return path[:idx], path[idx+1:], true
	}
	return path, "", false
}

// checkValue validates a value against a field's data type. Only checks that
// can be done without database access happen here.
func checkValue(f *Field, value any) error {
	if value == nil {
		return nil
	}
	switch f.DataType.Kind {
	case KindEnumeration:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: enumeration field %s requires a string value", ErrInvalidFieldValue, f.APIName)
		}
		if strings.ContainsRune(s, '\n') {
			return fmt.Errorf("%w: enumeration value for field %s cannot contain new line characters", ErrInvalidFieldValue, f.APIName)
		}
	case KindTypeReference:
		switch value.(type) {
		case *Record, KID:
		default:
			return fmt.Errorf("%w: reference field %s requires a record or a KID", ErrInvalidFieldValue, f.APIName)
		}
	}
	return nil
}
