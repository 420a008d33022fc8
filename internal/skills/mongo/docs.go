package mongo

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/format"
)

// parseDoc reads one relaxed Extended JSON document, so {"$oid": ...} and
// {"$date": ...} work in filters. Key order is kept for sorts.
func parseDoc(name, s string) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(s), false, &doc); err != nil {
		return nil, cli.Usagef("invalid JSON for %s: %v", name, err)
	}
	return doc, nil
}

// parseArray reads a JSON array of documents.
func parseArray(name, s string) (bson.A, error) {
	var wrapper struct {
		V bson.A `bson:"v"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"v":`+s+`}`), false, &wrapper); err != nil {
		return nil, cli.Usagef("invalid JSON for %s: %v", name, err)
	}
	for i, v := range wrapper.V {
		if _, ok := v.(bson.D); !ok {
			return nil, cli.Usagef("invalid JSON for %s: element %d is not an object", name, i)
		}
	}
	return wrapper.V, nil
}

func optionalDoc(a *args.Args, name string) (bson.D, error) {
	s, ok := a.String(name)
	if !ok {
		return bson.D{}, nil
	}
	return parseDoc("--"+name, s)
}

func requiredDoc(a *args.Args, name string) (bson.D, error) {
	s, _ := a.String(name)
	return parseDoc("--"+name, s)
}

// parseDocs accepts a single document or an array of documents.
func parseDocs(s string) ([]any, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "[") {
		arr, err := parseArray("document", s)
		if err != nil {
			return nil, err
		}
		if len(arr) == 0 {
			return nil, cli.Usagef("nothing to insert")
		}
		return []any(arr), nil
	}
	doc, err := parseDoc("document", s)
	if err != nil {
		return nil, err
	}
	return []any{doc}, nil
}

func parsePipeline(s string) (bson.A, error) {
	if !strings.HasPrefix(strings.TrimSpace(s), "[") {
		return nil, cli.Usagef("pipeline must be a JSON array of stages")
	}
	return parseArray("pipeline", s)
}

// documentsResult lays documents out as rows. _id comes first, the rest of
// the union of keys follows in name order.
func documentsResult(docs []bson.M) *format.Result {
	seen := make(map[string]bool)
	var keys []string
	hasID := false
	records := make([]map[string]any, 0, len(docs))

	for _, d := range docs {
		rec := make(map[string]any, len(d))
		for k, v := range d {
			rec[k] = normalize(v)
			if k == "_id" {
				hasID = true
				continue
			}
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
		records = append(records, rec)
	}

	sort.Strings(keys)
	if hasID {
		keys = append([]string{"_id"}, keys...)
	}
	if len(keys) == 0 {
		return &format.Result{Columns: []string{"_id"}}
	}
	return format.FromRecords(records, keys...)
}

// normalize converts BSON-specific values into plain ones that render
// readably as table cells and JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Decimal128:
		return t.String()
	case primitive.Timestamp:
		return fmt.Sprintf("%d:%d", t.T, t.I)
	case bson.M:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = normalize(x)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = normalize(x)
		}
		return out
	default:
		return v
	}
}
