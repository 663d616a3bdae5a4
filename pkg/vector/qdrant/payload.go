package qdrant

import (
	"encoding/json"
	"fmt"
	"math"

	qc "github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/chunkstore/pkg/vector"
)

// Payload keys. document_id is the field deletes and filtered queries match on.
const (
	fieldDocumentID  = "document_id"
	fieldChunkNumber = "chunk_number"
	fieldContent     = "content"
	fieldMetadata    = "metadata"
)

func chunkPayload(c vector.Chunk) (map[string]*qc.Value, error) {
	metadata, err := toValue(c.MetadataOrEmpty())
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	return map[string]*qc.Value{
		fieldDocumentID:  stringValue(c.DocumentID),
		fieldChunkNumber: {Kind: &qc.Value_IntegerValue{IntegerValue: int64(c.ChunkNumber)}},
		fieldContent:     stringValue(c.Content),
		fieldMetadata:    metadata,
	}, nil
}

func payloadChunk(payload map[string]*qc.Value) (vector.Chunk, error) {
	documentID, ok := payload[fieldDocumentID].GetKind().(*qc.Value_StringValue)
	if !ok {
		return vector.Chunk{}, fmt.Errorf("payload has no %s", fieldDocumentID)
	}

	var chunkNumber int
	switch n := fromValue(payload[fieldChunkNumber]).(type) {
	case int64:
		chunkNumber = int(n)
	case float64:
		chunkNumber = int(n)
	default:
		return vector.Chunk{}, fmt.Errorf("payload has no %s", fieldChunkNumber)
	}

	metadata, _ := fromValue(payload[fieldMetadata]).(map[string]any)
	if metadata == nil {
		metadata = map[string]any{}
	}

	return vector.Chunk{
		DocumentID:  documentID.StringValue,
		ChunkNumber: chunkNumber,
		Content:     payload[fieldContent].GetStringValue(),
		Embedding:   []float32{},
		Metadata:    metadata,
	}, nil
}

func stringValue(s string) *qc.Value {
	return &qc.Value{Kind: &qc.Value_StringValue{StringValue: s}}
}

// toValue converts a Go value into a Qdrant payload value. Types outside the
// JSON model are normalized through encoding/json first.
func toValue(v any) (*qc.Value, error) {
	switch t := v.(type) {
	case nil:
		return &qc.Value{Kind: &qc.Value_NullValue{NullValue: qc.NullValue_NULL_VALUE}}, nil
	case bool:
		return &qc.Value{Kind: &qc.Value_BoolValue{BoolValue: t}}, nil
	case string:
		return stringValue(t), nil
	case int:
		return &qc.Value{Kind: &qc.Value_IntegerValue{IntegerValue: int64(t)}}, nil
	case int32:
		return &qc.Value{Kind: &qc.Value_IntegerValue{IntegerValue: int64(t)}}, nil
	case int64:
		return &qc.Value{Kind: &qc.Value_IntegerValue{IntegerValue: t}}, nil
	case float32:
		return &qc.Value{Kind: &qc.Value_DoubleValue{DoubleValue: float64(t)}}, nil
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return &qc.Value{Kind: &qc.Value_IntegerValue{IntegerValue: int64(t)}}, nil
		}
		return &qc.Value{Kind: &qc.Value_DoubleValue{DoubleValue: t}}, nil
	case map[string]any:
		fields := make(map[string]*qc.Value, len(t))
		for k, fv := range t {
			converted, err := toValue(fv)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			fields[k] = converted
		}
		return &qc.Value{Kind: &qc.Value_StructValue{StructValue: &qc.Struct{Fields: fields}}}, nil
	case []any:
		values := make([]*qc.Value, len(t))
		for i, lv := range t {
			converted, err := toValue(lv)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			values[i] = converted
		}
		return &qc.Value{Kind: &qc.Value_ListValue{ListValue: &qc.ListValue{Values: values}}}, nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("unsupported payload value %T: %w", t, err)
		}
		var normalized any
		if err := json.Unmarshal(raw, &normalized); err != nil {
			return nil, fmt.Errorf("unsupported payload value %T: %w", t, err)
		}
		return toValue(normalized)
	}
}

// fromValue converts a Qdrant payload value back into plain Go values.
// Integers come back as int64 and doubles as float64.
func fromValue(v *qc.Value) any {
	switch k := v.GetKind().(type) {
	case *qc.Value_BoolValue:
		return k.BoolValue
	case *qc.Value_IntegerValue:
		return k.IntegerValue
	case *qc.Value_DoubleValue:
		return k.DoubleValue
	case *qc.Value_StringValue:
		return k.StringValue
	case *qc.Value_StructValue:
		m := make(map[string]any, len(k.StructValue.GetFields()))
		for key, fv := range k.StructValue.GetFields() {
			m[key] = fromValue(fv)
		}
		return m
	case *qc.Value_ListValue:
		l := make([]any, len(k.ListValue.GetValues()))
		for i, lv := range k.ListValue.GetValues() {
			l[i] = fromValue(lv)
		}
		return l
	default:
		return nil
	}
}
