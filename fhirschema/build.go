package fhirschema

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	json "github.com/goccy/go-json"
)

// TableFromRows builds an Arrow table with schema from decoded JSON rows.
// Keys missing from a row become NULL; keys absent from the schema are dropped.
// If alloc is nil, memory.DefaultAllocator is used.
// Caller MUST call Release on the returned table.
func TableFromRows(alloc memory.Allocator, schema *arrow.Schema, rows []map[string]any) (arrow.Table, error) {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}

	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	for r, row := range rows {
		for i, f := range schema.Fields() {
			if err := appendJSON(builder.Field(i), row[f.Name]); err != nil {
				return nil, fmt.Errorf("row %d field %q: %w", r, f.Name, err)
			}
		}
	}

	record := builder.NewRecordBatch()
	defer record.Release()

	return array.NewTableFromRecords(schema, []arrow.RecordBatch{record}), nil
}

func appendJSON(b array.Builder, v any) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch b := b.(type) {
	case *array.StringBuilder:
		switch v := v.(type) {
		case string:
			b.Append(v)
		case json.Number:
			b.Append(v.String())
		case bool:
			b.Append(strconv.FormatBool(v))
		default:
			text, err := json.Marshal(v)
			if err != nil {
				return err
			}
			b.Append(string(text))
		}
	case *array.Int64Builder:
		n, ok := v.(json.Number)
		if !ok {
			return fmt.Errorf("expected integer, got %T", v)
		}
		i, err := n.Int64()
		if err != nil {
			return err
		}
		b.Append(i)
	case *array.Float64Builder:
		switch v := v.(type) {
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return err
			}
			b.Append(f)
		case float64:
			b.Append(v)
		default:
			return fmt.Errorf("expected number, got %T", v)
		}
	case *array.BooleanBuilder:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected boolean, got %T", v)
		}
		b.Append(bv)
	case *array.StructBuilder:
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", v)
		}
		st := b.Type().(*arrow.StructType)
		b.Append(true)
		for i := 0; i < st.NumFields(); i++ {
			if err := appendJSON(b.FieldBuilder(i), m[st.Field(i).Name]); err != nil {
				return fmt.Errorf("%s: %w", st.Field(i).Name, err)
			}
		}
	case *array.ListBuilder:
		list, ok := v.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
		b.Append(true)
		vb := b.ValueBuilder()
		for _, e := range list {
			if err := appendJSON(vb, e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}
