// Package driver provides the MongoDB driver for the golem ODM.
// This file contains helpers translating core read options into MongoDB
// options.
package driver

import (
	"go.mongodb.org/mongo-driver/bson"
	mopt "go.mongodb.org/mongo-driver/mongo/options"

	"github.com/leandroluk/golem-odm/core"
)

// sortDocument converts sort rules into an ordered sort document.
//
// Example:
//
//	sortDocument([]core.Sort{{Field: "age", Order: -1}, {Field: "name", Order: 1}})
//	// bson.D{{"age", -1}, {"name", 1}}
func sortDocument(sortList []core.Sort) bson.D {
	sortDoc := bson.D{}
	for _, sortItem := range sortList {
		direction := 1
		if sortItem.Order < 0 {
			direction = -1
		}
		sortDoc = append(sortDoc, bson.E{Key: sortItem.Field, Value: direction})
	}
	return sortDoc
}

// projectionDocument converts a field list into an inclusion projection.
func projectionDocument(fields []string) bson.M {
	projection := bson.M{}
	for _, field := range fields {
		projection[field] = 1
	}
	return projection
}

// filterOrEmpty ensures a filter document is never nil.
func filterOrEmpty(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}

func findOptions(options *core.FindOptions) *mopt.FindOptions {
	findOpts := mopt.Find()
	if options == nil {
		return findOpts
	}
	if len(options.Sort) > 0 {
		findOpts.SetSort(sortDocument(options.Sort))
	}
	if options.Limit > 0 {
		findOpts.SetLimit(options.Limit)
	}
	if options.Skip > 0 {
		findOpts.SetSkip(options.Skip)
	}
	if len(options.Projection) > 0 {
		findOpts.SetProjection(projectionDocument(options.Projection))
	}
	return findOpts
}

func findOneOptions(options *core.FindOptions) *mopt.FindOneOptions {
	findOpts := mopt.FindOne()
	if options == nil {
		return findOpts
	}
	if len(options.Sort) > 0 {
		findOpts.SetSort(sortDocument(options.Sort))
	}
	if options.Skip > 0 {
		findOpts.SetSkip(options.Skip)
	}
	if len(options.Projection) > 0 {
		findOpts.SetProjection(projectionDocument(options.Projection))
	}
	return findOpts
}
