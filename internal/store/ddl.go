package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kommetio/kommet-core/internal/types"
)

// columnType maps a field's data type to its SQL column type. TEXT is the
// portable default between PostgreSQL and SQLite.
func columnType(dt types.DataType) string {
	switch dt.Kind {
	case types.KindNumber:
		return "NUMERIC"
	case types.KindBoolean:
		return "BOOLEAN"
	case types.KindDateTime, types.KindDate:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// CreateTypeTable creates the backing table for a type. Collection fields
// have no column; association rows live in the linking type's table.
func CreateTypeTable(ctx context.Context, db *sql.DB, typ *types.Type) error {
	var cols []string
	for _, f := range typ.Fields() {
		if f.DataType.IsCollection() {
			continue
		}
		col := f.DBColumn() + " " + columnType(f.DataType)
		if f.APIName == types.IDField {
			col += " PRIMARY KEY"
		}
		cols = append(cols, col)
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", typ.TableName(), strings.Join(cols, ",\n\t"))
	_, err := db.ExecContext(ctx, ddl)
	return ConvertDBError(err)
}

// DropTypeTable drops the backing table for a type.
func DropTypeTable(ctx context.Context, db *sql.DB, typ *types.Type) error {
	_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+typ.TableName())
	return ConvertDBError(err)
}

// AddFieldColumn adds the column for a newly created field.
func AddFieldColumn(ctx context.Context, db *sql.DB, typ *types.Type, f *types.Field) error {
	if f.DataType.IsCollection() {
		return nil
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		typ.TableName(), f.DBColumn(), columnType(f.DataType)))
	return ConvertDBError(err)
}

// DropFieldColumn removes the column of a deleted field.
func DropFieldColumn(ctx context.Context, db *sql.DB, typ *types.Type, f *types.Field) error {
	if f.DataType.IsCollection() {
		return nil
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		typ.TableName(), f.DBColumn()))
	return ConvertDBError(err)
}
