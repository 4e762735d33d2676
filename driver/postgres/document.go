// Package postgres provides a PostgreSQL driver for the golem ODM that
// stores every document as a single JSONB value.
// This file converts documents to and from their JSON form.
package postgres

import (
	"math"
	"reflect"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// timeLayout is fixed width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// encodeValue converts a document value into a shape JSON can carry:
// times become fixed-width UTC strings and ObjectIDs become hex strings.
func encodeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x
	case time.Time:
		return x.UTC().Format(timeLayout)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.UTC().Format(timeLayout)
	case primitive.DateTime:
		return x.Time().UTC().Format(timeLayout)
	case primitive.ObjectID:
		return x.Hex()
	case bson.D:
		return encodeDocument(x.Map())
	case bson.M:
		return encodeDocument(x)
	case map[string]any:
		return encodeDocument(x)
	case []byte:
		return x
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return encodeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		fallthrough
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = encodeValue(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func encodeDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = encodeValue(v)
	}
	return out
}

// decodeDocument parses a stored JSONB document.
func decodeDocument(data []byte) (bson.M, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return bson.M{}, nil
	}
	return decodeValue(raw).(bson.M), nil
}

func decodeScalar(data []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return decodeValue(raw), nil
}

// decodeValue restores integers and timestamps that JSON flattened into
// floats and strings.
func decodeValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(bson.M, len(x))
		for k, item := range x {
			out[k] = decodeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = decodeValue(item)
		}
		return out
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case string:
		if len(x) == len(timeLayout) {
			if t, err := time.Parse(timeLayout, x); err == nil {
				return t
			}
		}
		return x
	}
	return v
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
