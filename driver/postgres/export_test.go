package postgres

import (
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/leandroluk/golem-odm/core"
)

var (
	SelectSQL       = selectSQL
	CountSQL        = countSQL
	DistinctSQL     = distinctSQL
	InsertSQL       = insertSQL
	UpdateSQL       = updateSQL
	DeleteSQL       = deleteSQL
	TextArray       = textArray
	EncodeValue     = encodeValue
	DecodeDocument  = decodeDocument
	WhereExpression = whereExpression
)

func Table(defaultSchema string, coll core.Collection) (exp.IdentifierExpression, error) {
	return Wrap(nil, defaultSchema).table(coll)
}
