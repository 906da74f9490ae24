package types

import "fmt"

// DataTypeKind enumerates the data types a field can have.
type DataTypeKind int

const (
	KindText DataTypeKind = iota
	KindNumber
	KindBoolean
	KindDateTime
	KindDate
	KindEnumeration
	KindTypeReference
	KindInverseCollection
	KindAssociation
	KindFormula
	KindAutoNumber
)

// String returns the string representation of the data type kind.
func (k DataTypeKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDateTime:
		return "datetime"
	case KindDate:
		return "date"
	case KindEnumeration:
		return "enumeration"
	case KindTypeReference:
		return "type reference"
	case KindInverseCollection:
		return "inverse collection"
	case KindAssociation:
		return "association"
	case KindFormula:
		return "formula"
	case KindAutoNumber:
		return "autonumber"
	default:
		return "unknown"
	}
}

// DataType is the tagged description of a field's type. Kind selects which of
// the remaining attributes are meaningful.
type DataType struct {
	Kind DataTypeKind

	// Number
	DecimalPlaces int

	// Enumeration
	Values []string

	// TypeReference, InverseCollection, Association
	RefTypeID KID

	// TypeReference: delete referencing records together with the referenced one
	CascadeDelete bool

	// InverseCollection: API name of the reference field on the related type
	// that points back at the owning type
	MappingField string

	// Association
	LinkingTypeID       KID
	SelfLinkingField    string
	ForeignLinkingField string

	// Formula
	FormulaText string
}

// IsRelationship reports whether the data type points at another type.
func (dt DataType) IsRelationship() bool {
	switch dt.Kind {
	case KindTypeReference, KindInverseCollection, KindAssociation:
		return true
	}
	return false
}

// IsCollection reports whether the data type holds multiple related records.
func (dt DataType) IsCollection() bool {
	return dt.Kind == KindInverseCollection || dt.Kind == KindAssociation
}

// Validate checks the internal consistency of the data type definition.
func (dt DataType) Validate() error {
	switch dt.Kind {
	case KindTypeReference, KindInverseCollection, KindAssociation:
		if dt.RefTypeID.IsNil() {
			return fmt.Errorf("%s data type requires a related type", dt.Kind)
		}
	case KindEnumeration:
		if len(dt.Values) == 0 {
			return fmt.Errorf("enumeration data type requires at least one value")
		}
	case KindNumber:
		if dt.DecimalPlaces < 0 {
			return fmt.Errorf("number data type cannot have negative decimal places")
		}
	}
	if dt.Kind == KindAssociation && dt.LinkingTypeID.IsNil() {
		return fmt.Errorf("association data type requires a linking type")
	}
	return nil
}

// Text returns a text data type.
func Text() DataType { return DataType{Kind: KindText} }

// Number returns a numeric data type with the given number of decimal places.
func Number(decimalPlaces int) DataType {
	return DataType{Kind: KindNumber, DecimalPlaces: decimalPlaces}
}

// Boolean returns a boolean data type.
func Boolean() DataType { return DataType{Kind: KindBoolean} }

// DateTime returns a timestamp data type.
func DateTime() DataType { return DataType{Kind: KindDateTime} }

// Enumeration returns an enumeration data type over the given values.
func Enumeration(values ...string) DataType {
	return DataType{Kind: KindEnumeration, Values: values}
}

// TypeReference returns a reference to another type.
func TypeReference(refTypeID KID, cascadeDelete bool) DataType {
	return DataType{Kind: KindTypeReference, RefTypeID: refTypeID, CascadeDelete: cascadeDelete}
}

// InverseCollection returns a collection of records of refType whose
// mappingField points back at the owning record.
func InverseCollection(refTypeID KID, mappingField string) DataType {
	return DataType{Kind: KindInverseCollection, RefTypeID: refTypeID, MappingField: mappingField}
}

// Association returns a many-to-many collection realized through a linking type.
func Association(linkingTypeID, refTypeID KID, selfLinkingField, foreignLinkingField string) DataType {
	return DataType{
		Kind:                KindAssociation,
		LinkingTypeID:       linkingTypeID,
		RefTypeID:           refTypeID,
		SelfLinkingField:    selfLinkingField,
		ForeignLinkingField: foreignLinkingField,
	}
}
