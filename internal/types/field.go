package types

import (
	"fmt"
	"regexp"
	"strings"
)

// API names of the system fields present on every type.
const (
	IDField               = "id"
	CreatedDateField      = "createdDate"
	CreatedByField        = "createdBy"
	LastModifiedDateField = "lastModifiedDate"
	LastModifiedByField   = "lastModifiedBy"
	AccessTypeField       = "accessType"
	TriggerFlagField      = "triggerFlag"
)

// RecordAccessType marks who may modify a record.
type RecordAccessType int

const (
	// AccessPublic rows are ordinary user data.
	AccessPublic RecordAccessType = iota
	// AccessSystem rows are maintained by the engine (e.g. propagated
	// sharings) and cannot be modified through regular saves.
	AccessSystem
)

var apiNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Field describes a single attribute of a Type.
type Field struct {
	ID       KID
	APIName  string
	Label    string
	DataType DataType
	Required bool
	// TrackHistory causes value changes to be written to the field history
	// table on every update.
	TrackHistory bool
	DefaultValue any
	// System fields are created implicitly with the type and cannot be
	// removed or redefined.
	System bool
}

// DBColumn returns the database column the field is stored in. Fields are
// shared through the type registry, so this must stay free of writes.
func (f *Field) DBColumn() string {
	return toColumnName(f.APIName)
}

// IsRelationship reports whether the field points at another type.
func (f *Field) IsRelationship() bool {
	return f.DataType.IsRelationship()
}

// Validate checks the field definition.
func (f *Field) Validate() error {
	if f.APIName == "" {
		return fmt.Errorf("field has no API name")
	}
	if !apiNamePattern.MatchString(f.APIName) {
		return fmt.Errorf("invalid field API name %q", f.APIName)
	}
	return f.DataType.Validate()
}

// toColumnName converts a camel-case API name to a snake-case column name.
func toColumnName(apiName string) string {
	var b strings.Builder
	for i, r := range apiName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// systemFields returns fresh definitions of the implicit fields every type has.
func systemFields() []*Field {
	return []*Field{
		{APIName: IDField, Label: "ID", DataType: Text(), System: true},
		{APIName: CreatedDateField, Label: "Created Date", DataType: DateTime(), System: true},
		{APIName: CreatedByField, Label: "Created By", DataType: Text(), System: true},
		{APIName: LastModifiedDateField, Label: "Last Modified Date", DataType: DateTime(), System: true},
		{APIName: LastModifiedByField, Label: "Last Modified By", DataType: Text(), System: true},
		{APIName: AccessTypeField, Label: "Access Type", DataType: Number(0), System: true},
		{APIName: TriggerFlagField, Label: "Trigger Flag", DataType: Boolean(), System: true},
	}
}
