// Package core provides the fundamental building blocks of the golem ODM.
// This file defines cursor helpers shared by drivers and the query executor.
package core

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// SliceCursor is a Cursor over documents already held in memory.
type SliceCursor struct {
	documents []bson.M
	position  int
}

// NewSliceCursor creates a cursor over documents.
func NewSliceCursor(documents []bson.M) *SliceCursor {
	return &SliceCursor{documents: documents, position: -1}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	c.position++
	return c.position < len(c.documents)
}

// Decode copies the current document into v, which must be *bson.M or
// *map[string]any.
func (c *SliceCursor) Decode(v any) error {
	if c.position < 0 || c.position >= len(c.documents) {
		return fmt.Errorf("golem: cursor is not positioned on a document")
	}
	doc := c.documents[c.position]
	switch out := v.(type) {
	case *bson.M:
		*out = normalizeDocument(doc)
	case *map[string]any:
		*out = map[string]any(normalizeDocument(doc))
	default:
		return fmt.Errorf("golem: cannot decode document into %T", v)
	}
	return nil
}

func (c *SliceCursor) Err() error { return nil }

func (c *SliceCursor) Close(context.Context) error { return nil }

// All drains a cursor into a slice of normalized documents and closes it.
func All(ctx context.Context, cursor Cursor) ([]bson.M, error) {
	defer cursor.Close(ctx)
	var documents []bson.M
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		documents = append(documents, normalizeDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return documents, nil
}
