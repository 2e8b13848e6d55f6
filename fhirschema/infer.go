package fhirschema

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	json "github.com/goccy/go-json"
)

type kind uint8

const (
	kindUnknown kind = iota
	kindBool
	kindInt
	kindFloat
	kindString
	kindStruct
	kindList
)

// node accumulates the observed shape of one JSON value position.
type node struct {
	kind   kind
	fields map[string]*node
	elem   *node
}

func seed(e Element) *node {
	var k kind
	switch e.Type {
	case "string":
		k = kindString
	case "boolean":
		k = kindBool
	case "integer":
		k = kindInt
	case "decimal":
		k = kindFloat
	default:
		return &node{}
	}
	if e.Repeated {
		return &node{kind: kindList, elem: &node{kind: k}}
	}
	return &node{kind: k}
}

// widen merges k into the node and reports whether the node now has kind k.
func (n *node) widen(k kind) bool {
	switch {
	case n.kind == kindUnknown:
		n.kind = k
	case n.kind == k:
	case n.kind == kindInt && k == kindFloat, n.kind == kindFloat && k == kindInt:
		n.kind = kindFloat
	default:
		n.kind = kindString
		n.fields = nil
		n.elem = nil
	}
	return n.kind == k
}

func (n *node) observe(v any) {
	switch v := v.(type) {
	case nil:
	case bool:
		n.widen(kindBool)
	case json.Number:
		if _, err := v.Int64(); err == nil {
			n.widen(kindInt)
		} else {
			n.widen(kindFloat)
		}
	case float64:
		n.widen(kindFloat)
	case string:
		n.widen(kindString)
	case map[string]any:
		if !n.widen(kindStruct) {
			return
		}
		if n.fields == nil {
			n.fields = make(map[string]*node, len(v))
		}
		for key, fv := range v {
			child, ok := n.fields[key]
			if !ok {
				child = &node{}
				n.fields[key] = child
			}
			child.observe(fv)
		}
	case []any:
		if !n.widen(kindList) {
			return
		}
		if n.elem == nil {
			n.elem = &node{}
		}
		for _, e := range v {
			n.elem.observe(e)
		}
	default:
		n.widen(kindString)
	}
}

func (n *node) dataType() arrow.DataType {
	switch n.kind {
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindStruct:
		if len(n.fields) == 0 {
			return arrow.BinaryTypes.String
		}
		names := make([]string, 0, len(n.fields))
		for name := range n.fields {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]arrow.Field, len(names))
		for i, name := range names {
			fields[i] = arrow.Field{Name: name, Type: n.fields[name].dataType(), Nullable: true}
		}
		return arrow.StructOf(fields...)
	case kindList:
		elem := n.elem
		if elem == nil {
			elem = &node{}
		}
		return arrow.ListOf(elem.dataType())
	default:
		return arrow.BinaryTypes.String
	}
}

// ResourceMetadataKey is the schema metadata key naming the FHIR resource.
const ResourceMetadataKey = "fhir_resource"

// SchemaFromRows returns the Arrow schema for resource given its decoded rows.
// Defined top-level elements come first in definition order, followed by any
// other observed top-level keys in sorted order.
func SchemaFromRows(resource string, rows []map[string]any) *arrow.Schema {
	elements, _ := Elements(resource)

	columns := make(map[string]*node, len(elements))
	order := make([]string, 0, len(elements))
	for _, e := range elements {
		if _, dup := columns[e.Name]; dup {
			continue
		}
		columns[e.Name] = seed(e)
		order = append(order, e.Name)
	}

	var extra []string
	for _, row := range rows {
		for key, v := range row {
			n, ok := columns[key]
			if !ok {
				n = &node{}
				columns[key] = n
				extra = append(extra, key)
			}
			n.observe(v)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	fields := make([]arrow.Field, len(order))
	for i, name := range order {
		fields[i] = arrow.Field{Name: name, Type: columns[name].dataType(), Nullable: true}
	}
	md := arrow.NewMetadata([]string{ResourceMetadataKey}, []string{resource})
	return arrow.NewSchema(fields, &md)
}
