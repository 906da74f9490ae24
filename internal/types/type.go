package types

import (
	"fmt"
	"strings"
)

// TypeResolver resolves a type identifier to its definition. It is implemented
// by the environment's type registry and passed into operations that traverse
// relationships between types.
type TypeResolver interface {
	Type(id KID) (*Type, bool)
}

// Type is a user-defined record schema.
type Type struct {
	ID        KID
	APIName   string
	Package   string
	Label     string
	KeyPrefix string

	// DefaultField is the API name of the field substituted for the
	// {defaultField} token in DAL queries. Defaults to "id".
	DefaultField string

	// SharingControlledByField, when set, names a type-reference field whose
	// target record's sharing governs access to rows of this type.
	SharingControlledByField string
	// CombineRecordAndCascadeSharing unions the row's own sharing with the
	// controlling record's sharing instead of delegating entirely.
	CombineRecordAndCascadeSharing bool

	fields []*Field
	byName map[string]*Field
}

// NewType creates a type definition with all system fields in place.
func NewType(pkg, apiName, label string) (*Type, error) {
	if apiName == "" {
		return nil, fmt.Errorf("type has no API name")
	}
	if !apiNamePattern.MatchString(apiName) {
		return nil, fmt.Errorf("invalid type API name %q", apiName)
	}
	t := &Type{
		APIName:      apiName,
		Package:      pkg,
		Label:        label,
		DefaultField: IDField,
		byName:       make(map[string]*Field),
	}
	for _, f := range systemFields() {
		if err := t.AddField(f); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// QualifiedName returns the package-qualified name of the type.
func (t *Type) QualifiedName() string {
	if t.Package == "" {
		return t.APIName
	}
	return t.Package + "." + t.APIName
}

// TableName returns the database table rows of this type are stored in.
func (t *Type) TableName() string {
	return "obj_" + t.KeyPrefix
}

// Fields returns the type's fields in definition order.
func (t *Type) Fields() []*Field {
	return t.fields
}

// Field returns the field with the given API name, if any.
func (t *Type) Field(apiName string) (*Field, bool) {
	f, ok := t.byName[apiName]
	return f, ok
}

// AddField appends a field to the type, rejecting duplicate API names.
func (t *Type) AddField(f *Field) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if t.byName == nil {
		t.byName = make(map[string]*Field)
	}
	if _, exists := t.byName[f.APIName]; exists {
		return fmt.Errorf("%w: field %s already exists on type %s", ErrDuplicateField, f.APIName, t.APIName)
	}
	t.fields = append(t.fields, f)
	t.byName[f.APIName] = f
	return nil
}

// RemoveField removes a non-system field from the type definition.
func (t *Type) RemoveField(apiName string) error {
	f, ok := t.byName[apiName]
	if !ok {
		return fmt.Errorf("%w: %s on type %s", ErrNoSuchField, apiName, t.APIName)
	}
	if f.System {
		return fmt.Errorf("cannot remove system field %s from type %s", apiName, t.APIName)
	}
	delete(t.byName, apiName)
	for i, existing := range t.fields {
		if existing == f {
			t.fields = append(t.fields[:i], t.fields[i+1:]...)
			break
		}
	}
	return nil
}

// FieldChain is the result of resolving a possibly-dotted field path: the
// terminal field plus the relationship fields traversed to reach it.
type FieldChain struct {
	// Path is the original dotted path.
	Path string
	// Refs are the relationship fields traversed, in order. Empty for a
	// plain field on the type itself.
	Refs []*Field
	// RefTypes are the types each element of Refs points at.
	RefTypes []*Type
	// Terminal is the field the last path segment resolved to.
	Terminal *Field
}

// TerminalType returns the type the terminal field belongs to.
func (c *FieldChain) TerminalType(root *Type) *Type {
	if len(c.RefTypes) == 0 {
		return root
	}
	return c.RefTypes[len(c.RefTypes)-1]
}

// GetField resolves a possibly-dotted field path, following type-reference
// fields through the resolver. Every non-terminal segment must be a
// relationship field.
func (t *Type) GetField(path string, resolver TypeResolver) (*FieldChain, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty field path on type %s", ErrNoSuchField, t.APIName)
	}
	segments := strings.Split(path, ".")
	chain := &FieldChain{Path: path}
	current := t
	for i, segment := range segments {
		f, ok := current.Field(segment)
		if !ok {
			return nil, fmt.Errorf("%w: %s on type %s", ErrNoSuchField, path, t.QualifiedName())
		}
		if i == len(segments)-1 {
			chain.Terminal = f
			return chain, nil
		}
		if !f.IsRelationship() {
			return nil, fmt.Errorf("%w: segment %s of path %s on type %s is not a relationship", ErrNoSuchField, segment, path, t.QualifiedName())
		}
		if resolver == nil {
			return nil, fmt.Errorf("cannot resolve nested path %s without a type resolver", path)
		}
		next, ok := resolver.Type(f.DataType.RefTypeID)
		if !ok {
			return nil, fmt.Errorf("%w: related type %s of field %s", ErrNoSuchType, f.DataType.RefTypeID, segment)
		}
		chain.Refs = append(chain.Refs, f)
		chain.RefTypes = append(chain.RefTypes, next)
		current = next
	}
	return chain, nil
}
