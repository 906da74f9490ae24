package types

import "errors"

// Metadata errors. Callers branch on these with errors.Is.
var (
	// ErrNoSuchType is returned when a type cannot be resolved by id,
	// qualified name or key prefix.
	ErrNoSuchType = errors.New("no such type")

	// ErrNoSuchField is returned when a field path cannot be resolved on a type.
	ErrNoSuchField = errors.New("no such field")

	// ErrDuplicateType is returned when registering a type whose qualified
	// name or key prefix is already taken.
	ErrDuplicateType = errors.New("duplicate type")

	// ErrDuplicateField is returned when adding a field whose API name is
	// already taken on the type.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrFieldNotSet is returned when reading a record field that was neither
	// set nor fetched by the query that produced the record.
	ErrFieldNotSet = errors.New("field value not set")

	// ErrInvalidFieldValue is returned when a value does not fit the field's
	// data type.
	ErrInvalidFieldValue = errors.New("invalid field value")

	// ErrImmutableAccessType is returned when a regular save touches a record
	// whose access type marks it as system-maintained.
	ErrImmutableAccessType = errors.New("cannot modify record with immutable access type")
)
