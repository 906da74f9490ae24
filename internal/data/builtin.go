package data

import (
	"context"

	"github.com/kommetio/kommet-core/internal/types"
)

// CommentTypeName is the qualified name of the built-in Comment type.
const CommentTypeName = "kommet.basic.Comment"

// RegisterBuiltins creates the built-in types of a fresh environment.
// Comments are shared through the record they annotate: their access is
// controlled by the recordId field, unioned with direct sharing on the
// comment row itself.
func (s *Service) RegisterBuiltins(ctx context.Context) error {
	if _, ok := s.env.TypeByQualifiedName(CommentTypeName); ok {
		return nil
	}

	comment, err := types.NewType("kommet.basic", "Comment", "Comment")
	if err != nil {
		return err
	}
	comment.KeyPrefix = types.CommentPrefix
	comment.SharingControlledByField = "recordId"
	comment.CombineRecordAndCascadeSharing = true

	content := &types.Field{
		APIName:  "content",
		Label:    "Content",
		DataType: types.Text(),
		Required: true,
	}
	// recordId holds the identifier of the annotated record. It is a plain
	// identifier value, not a typed reference, because a comment can point
	// at a row of any type.
	recordID := &types.Field{
		APIName:  "recordId",
		Label:    "Record",
		DataType: types.Text(),
		Required: true,
	}
	parent := &types.Field{
		APIName:  "parentId",
		Label:    "Parent Comment",
		DataType: types.Text(),
	}
	for _, f := range []*types.Field{content, recordID, parent} {
		if err := comment.AddField(f); err != nil {
			return err
		}
	}
	return s.CreateType(ctx, comment)
}
