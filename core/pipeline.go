// Package core provides the fundamental building blocks of the golem ODM.
// This file builds the aggregation pipeline used when a query asks for
// distinct documents, groups or group filters.
package core

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// GroupCountField is the attribute carrying the group size on entities
// returned by GroupBy and Distinct queries.
const GroupCountField = "groupCount"

func (q *Query) usesPipeline() bool {
	return q.distinct != "" || len(q.groupBy) > 0 || !q.having.Empty()
}

// Pipeline returns the aggregation stages the query runs when Distinct,
// GroupBy or Having are set.
//
// The pipeline matches the filter, groups by the key fields keeping the
// first document of each group, promotes that document back to the root
// with the group size merged in, then applies Having, sort, skip, limit and
// projection.
func (q *Query) Pipeline() []bson.M {
	schema := q.model.schema
	stages := []bson.M{{"$match": q.StorageFilter()}}

	keys := q.groupBy
	if q.distinct != "" {
		keys = []string{q.distinct}
	}
	var groupID any
	switch columns := TranslateFields(schema, keys); len(columns) {
	case 0:
		groupID = "$" + schema.ColumnName(schema.PrimaryKey)
	case 1:
		groupID = "$" + columns[0]
	default:
		id := bson.M{}
		for _, column := range columns {
			id[strings.ReplaceAll(column, ".", "_")] = "$" + column
		}
		groupID = id
	}
	stages = append(stages,
		bson.M{"$group": bson.M{
			"_id":           groupID,
			"document":      bson.M{"$first": "$$ROOT"},
			GroupCountField: bson.M{"$sum": 1},
		}},
		bson.M{"$replaceRoot": bson.M{
			"newRoot": bson.M{"$mergeObjects": bson.A{"$document", bson.M{GroupCountField: "$" + GroupCountField}}},
		}},
	)

	if !q.having.Empty() {
		stages = append(stages, bson.M{"$match": TranslateFilter(schema, q.having.Filter())})
	}
	if len(q.sort) > 0 {
		order := bson.D{}
		for _, s := range q.sort {
			order = append(order, bson.E{Key: schema.ColumnName(s.Field), Value: s.Order})
		}
		stages = append(stages, bson.M{"$sort": order})
	}
	if q.skip > 0 {
		stages = append(stages, bson.M{"$skip": q.skip})
	}
	if q.limit > 0 {
		stages = append(stages, bson.M{"$limit": q.limit})
	}
	if len(q.projection) > 0 {
		projection := bson.M{GroupCountField: 1}
		for _, column := range TranslateFields(schema, q.projection) {
			projection[column] = 1
		}
		stages = append(stages, bson.M{"$project": projection})
	}
	return stages
}

func (q *Query) aggregate(ctx context.Context) ([]bson.M, error) {
	m := q.model
	pipeline := q.Pipeline()
	var docs []bson.M
	err := m.exec(ctx, OperationAggregate, pipeline, func(ctx context.Context) error {
		cursor, err := m.driver.Aggregate(ctx, m.collection(), pipeline)
		if err != nil {
			return err
		}
		docs, err = All(ctx, cursor)
		return err
	})
	return docs, err
}
