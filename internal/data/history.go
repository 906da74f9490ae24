package data

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kommetio/kommet-core/internal/store"
	"github.com/kommetio/kommet-core/internal/types"
)

// FieldHistoryTable holds one row per tracked-field change.
const FieldHistoryTable = "field_histories"

// FieldHistory is one recorded change of a tracked field.
type FieldHistory struct {
	ID        types.KID
	RecordID  types.KID
	FieldID   types.KID
	OldValue  string
	NewValue  string
	Operation string
}

// FieldHistorySchema returns the DDL of the field history table.
func FieldHistorySchema() string {
	return `CREATE TABLE IF NOT EXISTS ` + FieldHistoryTable + ` (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		field_id TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT,
		operation TEXT NOT NULL
	)`
}

// writeFieldHistory records changes of tracked fields during an update.
// oldRec may be nil when the type tracks nothing.
func (s *Service) writeFieldHistory(ctx context.Context, typ *types.Type, rec, oldRec *types.Record) error {
	if oldRec == nil {
		return nil
	}
	for _, f := range typ.Fields() {
		if !f.TrackHistory || !rec.IsSet(f.APIName) {
			continue
		}
		newVal, err := rec.GetField(f.APIName)
		if err != nil {
			return err
		}
		oldVal, err := oldRec.GetField(f.APIName)
		if err != nil && !errors.Is(err, types.ErrFieldNotSet) {
			return err
		}
		oldStr, newStr := historyValue(oldVal), historyValue(newVal)
		if oldStr == newStr {
			continue
		}

		id, err := s.seq.Next(ctx, types.FieldHistoryPrefix)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, `INSERT INTO `+FieldHistoryTable+`
			(id, record_id, field_id, old_value, new_value, operation)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id.String(), rec.ID().String(), f.ID.String(), oldStr, newStr, "update")
		if err != nil {
			return store.ConvertDBError(err)
		}
		s.log.Debug("field history recorded",
			zap.String("record", rec.ID().String()),
			zap.String("field", f.APIName))
	}
	return nil
}

// FieldHistoryForRecord lists the recorded changes of a record.
func (s *Service) FieldHistoryForRecord(ctx context.Context, recordID types.KID) ([]*FieldHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, record_id, field_id, old_value, new_value, operation FROM "+FieldHistoryTable+" WHERE record_id = $1 ORDER BY id",
		recordID.String())
	if err != nil {
		return nil, store.ConvertDBError(err)
	}
	defer rows.Close()

	var out []*FieldHistory
	for rows.Next() {
		var h FieldHistory
		var id, rid, fid string
		if err := rows.Scan(&id, &rid, &fid, &h.OldValue, &h.NewValue, &h.Operation); err != nil {
			return nil, err
		}
		h.ID = types.KID(id)
		h.RecordID = types.KID(rid)
		h.FieldID = types.KID(fid)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func historyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case *types.Record:
		return val.ID().String()
	case types.KID:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
