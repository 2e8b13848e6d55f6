// Package fhirschema derives columnar Arrow schemas for FHIR resources.
//
// FHIR resources are open JSON documents: most elements are optional and
// nested structures vary from row to row. A schema is built in two passes:
//
//  1. Every top-level element the FHIR R4 definition lists for the resource
//     becomes a column, so a table is schema-ful even when no rows exist.
//  2. The rows are scanned and each column is widened to fit what was seen.
//     Nested struct members and list elements only appear when observed.
//
// Widening rules: int and float merge to float; any other conflict (for
// example a string seen where an object was expected) degrades the column to
// a string holding the JSON text. Columns that were never observed and have a
// complex FHIR type become string columns.
package fhirschema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed definitions.yaml
var definitionsYAML []byte

// baseKey holds the elements shared by every resource.
const baseKey = "_base"

// Element is one top-level element of a resource definition.
type Element struct {
	Name     string
	Type     string
	Repeated bool
}

// Primitive reports whether the element holds a JSON scalar.
func (e Element) Primitive() bool {
	switch e.Type {
	case "string", "boolean", "integer", "decimal":
		return true
	default:
		return false
	}
}

type elementList []Element

// UnmarshalYAML keeps the document order of the element mapping.
func (l *elementList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of element names to types", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, typ := node.Content[i].Value, node.Content[i+1].Value
		e := Element{Name: name, Type: typ}
		if strings.HasSuffix(typ, "[]") {
			e.Type = strings.TrimSuffix(typ, "[]")
			e.Repeated = true
		}
		*l = append(*l, e)
	}
	return nil
}

var loadDefinitions = sync.OnceValues(func() (map[string]elementList, error) {
	defs := make(map[string]elementList)
	if err := yaml.Unmarshal(definitionsYAML, &defs); err != nil {
		return nil, fmt.Errorf("parse FHIR definitions: %w", err)
	}
	if _, ok := defs[baseKey]; !ok {
		return nil, fmt.Errorf("parse FHIR definitions: missing %s", baseKey)
	}
	return defs, nil
})

// Elements returns the top-level elements of resource (for example
// "Patient"), base resource elements first. The boolean is false when the
// resource has no definition; the base elements are still returned.
func Elements(resource string) ([]Element, bool) {
	defs, err := loadDefinitions()
	if err != nil {
		// definitions.yaml is embedded; a parse failure is a build defect.
		panic(err)
	}
	specific, ok := defs[resource]
	out := make([]Element, 0, len(defs[baseKey])+len(specific))
	out = append(out, defs[baseKey]...)
	out = append(out, specific...)
	return out, ok
}
