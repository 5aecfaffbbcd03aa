// Package schema defines the core data model of the extraction engine:
// extraction schemas, requests, results, and parsed documents.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Field is one entry of an extraction schema: a field name and a
// human-readable description of what should be extracted.
type Field struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Schema is an ordered mapping from field name to description. Order is
// significant for callers (it is preserved in prompts and outputs), but it
// does not affect cache identity: see CanonicalJSON.
type Schema []Field

// NewSchema builds a Schema from alternating name, description pairs.
func NewSchema(pairs ...string) Schema {
	if len(pairs)%2 != 0 {
		panic("schema.NewSchema: odd number of arguments")
	}
	s := make(Schema, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		s = append(s, Field{Name: pairs[i], Description: pairs[i+1]})
	}
	return s
}

// Keys returns the field names in schema order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s))
	for i, f := range s {
		keys[i] = f.Name
	}
	return keys
}

// KeySet returns the field names as a set.
func (s Schema) KeySet() map[string]struct{} {
	set := make(map[string]struct{}, len(s))
	for _, f := range s {
		set[f.Name] = struct{}{}
	}
	return set
}

// Get returns the description for a field name.
func (s Schema) Get(name string) (string, bool) {
	for _, f := range s {
		if f.Name == name {
			return f.Description, true
		}
	}
	return "", false
}

// Subset returns a reduced schema containing only the named fields, in the
// receiver's order. Unknown names are ignored.
func (s Schema) Subset(names map[string]struct{}) Schema {
	sub := make(Schema, 0, len(names))
	for _, f := range s {
		if _, ok := names[f.Name]; ok {
			sub = append(sub, f)
		}
	}
	return sub
}

// Validate checks that the schema is non-empty and its field names are
// unique and non-blank.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema is empty")
	}
	seen := make(map[string]struct{}, len(s))
	for _, f := range s {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("schema has a blank field name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("schema field %q is duplicated", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// CanonicalJSON renders the schema as a JSON object with keys sorted and
// whitespace stripped, so two schemas differing only in field order
// serialise identically.
func (s Schema) CanonicalJSON() []byte {
	sorted := make(Schema, len(s))
	copy(sorted, s)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range sorted {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(strings.TrimSpace(f.Name))
		desc, _ := json.Marshal(strings.Join(strings.Fields(f.Description), " "))
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(desc)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// MarshalJSON encodes the schema as a JSON object in schema order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		desc, err := json.Marshal(f.Description)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(desc)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the schema, preserving the
// object's key order.
func (s *Schema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("schema: expected JSON object, got %v", tok)
	}

	out := Schema{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("schema: non-string key %v", keyTok)
		}
		var desc string
		if err := dec.Decode(&desc); err != nil {
			return fmt.Errorf("schema: description for %q: %w", key, err)
		}
		out = append(out, Field{Name: key, Description: desc})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}
