package memory

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// copyDocument deep-copies nested documents and arrays so callers never
// share state with the store.
func copyDocument(doc bson.M) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case bson.M:
		return copyDocument(x)
	case map[string]any:
		return copyDocument(bson.M(x))
	case bson.D:
		return copyDocument(x.Map())
	case bson.A:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = copyValue(item)
		}
		return out
	case []bson.M:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = copyDocument(item)
		}
		return out
	}
	return v
}

func documentOf(v any) bson.M {
	switch x := v.(type) {
	case bson.M:
		return x
	case map[string]any:
		return bson.M(x)
	case bson.D:
		return x.Map()
	}
	return nil
}

func setPath(doc bson.M, path string, value any) {
	segments := strings.Split(path, ".")
	current := doc
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(bson.M)
		if !ok {
			if m, isMap := current[segment].(map[string]any); isMap {
				next = bson.M(m)
			} else {
				next = bson.M{}
			}
			current[segment] = next
		}
		current = next
	}
	current[segments[len(segments)-1]] = copyValue(value)
}

func unsetPath(doc bson.M, path string) {
	segments := strings.Split(path, ".")
	current := doc
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(bson.M)
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}
