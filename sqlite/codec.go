package sqlite

import (
	"bytes"
	"fmt"

	"github.com/asaidimu/go-tapestry/core/schema"
	"github.com/goccy/go-json"
)

// encode serializes a document into the JSON text stored in the data column.
// A string id lives in its own column only; other ids are also kept in the
// payload so they decode with their type.
func encode(doc schema.Document) (string, error) {
	payload := make(map[string]any, len(doc))
	for k, v := range doc {
		if _, ok := v.(string); ok && k == schema.IDField {
			continue
		}
		payload[k] = v
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(b), nil
}

// decode rebuilds a document from its id and data column. Integral numbers
// come back as int64, others as float64. An id stored in the payload wins
// over the id column.
func decode(id string, data []byte) (schema.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc := make(schema.Document, len(payload)+1)
	doc[schema.IDField] = id
	for k, v := range payload {
		doc[k] = normalize(v)
	}
	return doc, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	}
	return v
}

// parameter converts a filter value into a SQL argument comparable with the
// output of json_extract.
func parameter(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter value: %w", err)
	}
	// json_extract yields scalars unquoted, so values encoding to a JSON
	// string, such as times, are compared by their string form.
	var s string
	if json.Unmarshal(b, &s) == nil {
		return s, nil
	}
	return string(b), nil
}
