package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/speechflow/speechflow/errs"
)

// ParamType is one of the three value kinds a node parameter may take.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
)

// Param declares a single node configuration parameter.
type Param struct {
	Name      string
	Type      ParamType
	Pos       *int               // optional positional slot index
	Default   any                // optional default value
	Match     string             // optional regex, for ParamString
	Predicate func(float64) bool // optional predicate, for ParamNumber
}

// ParamSchema is an ordered set of parameter declarations, as passed to a
// node's configure(schema) call.
type ParamSchema struct {
	NodeKind string
	Params   []Param
}

var schemaCacheMu sync.Mutex
var schemaCache = map[string]*gojsonschema.Schema{}

// compiledFor builds (or returns the cached) gojsonschema.Schema validating
// the type and string pattern of a single parameter. Numeric predicates are
// not expressible in JSON Schema so they are checked separately in Bind.
func compiledFor(nodeKind string, p Param) (*gojsonschema.Schema, error) {
	key := nodeKind + "." + p.Name
	schemaCacheMu.Lock()
	if s, ok := schemaCache[key]; ok {
		schemaCacheMu.Unlock()
		return s, nil
	}
	schemaCacheMu.Unlock()

	doc := map[string]any{"type": string(p.Type)}
	if p.Type == ParamString && p.Match != "" {
		doc["pattern"] = p.Match
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}

	schemaCacheMu.Lock()
	schemaCache[key] = schema
	schemaCacheMu.Unlock()
	return schema, nil
}

// Bind resolves final parameter values: positional args fill Pos slots in
// order, named options override, defaults fill what's left, then every
// value is validated against its declared type/match. A bad value produces
// a Configuration error.
func (s *ParamSchema) Bind(positional []any, named map[string]any) (map[string]any, error) {
	bound := make(map[string]any, len(s.Params))

	for _, p := range s.Params {
		if p.Pos != nil && *p.Pos < len(positional) && positional[*p.Pos] != nil {
			bound[p.Name] = positional[*p.Pos]
		}
	}
	for name, v := range named {
		bound[name] = v
	}
	for _, p := range s.Params {
		if _, ok := bound[p.Name]; !ok && p.Default != nil {
			bound[p.Name] = p.Default
		}
	}

	for _, p := range s.Params {
		v, ok := bound[p.Name]
		if !ok {
			continue
		}
		if err := s.validateOne(p, v); err != nil {
			return nil, err
		}
	}
	return bound, nil
}

func (s *ParamSchema) validateOne(p Param, v any) error {
	schema, err := compiledFor(s.NodeKind, p)
	if err != nil {
		return errs.New("config", "compile-schema", errs.Configuration, err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errs.New("config", "marshal-param", errs.Configuration, err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errs.New("config", "validate-param", errs.Configuration, err)
	}
	if !result.Valid() {
		return errs.New("config", "validate-param", errs.Configuration,
			fmt.Errorf("parameter %q: %v", p.Name, result.Errors())).
			WithDetails(map[string]any{"param": p.Name})
	}
	if p.Type == ParamNumber && p.Predicate != nil {
		f, ok := v.(float64)
		if !ok {
			if i, ok2 := v.(int); ok2 {
				f = float64(i)
			}
		}
		if !p.Predicate(f) {
			return errs.New("config", "validate-param", errs.Configuration,
				fmt.Errorf("parameter %q failed predicate check", p.Name))
		}
	}
	return nil
}
