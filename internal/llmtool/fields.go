package llmtool

import (
	"fmt"
	"reflect"
	"strings"

	"ultraflow/internal/llmclient"
)

// Output structs describe the JSON a model must return. One walk over their
// tags feeds both the prompt's field list and the response schema:
//
//	json:"name"        field name; untagged or "-" fields are skipped
//	prompt:"optional"  the field may be omitted; prompt:"-" hides it
//	prompt_desc:"..."  description shown to the model
//	prompt_enum:"a|b"  allowed values
type outputField struct {
	name     string
	desc     string
	required bool
	enum     []string
	typ      reflect.Type
}

func outputFields(t reflect.Type) []outputField {
	out := make([]outputField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		prompt := strings.TrimSpace(f.Tag.Get("prompt"))
		if prompt == "-" {
			continue
		}
		of := outputField{
			name:     name,
			desc:     strings.TrimSpace(f.Tag.Get("prompt_desc")),
			required: prompt != "optional",
			typ:      f.Type,
		}
		if enum := strings.TrimSpace(f.Tag.Get("prompt_enum")); enum != "" {
			of.enum = strings.Split(enum, "|")
		}
		out = append(out, of)
	}
	return out
}

func structType(v any) (reflect.Type, error) {
	if v == nil {
		return nil, fmt.Errorf("llmtool: struct is nil")
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("llmtool: expected struct, got %s", t.Kind())
	}
	return t, nil
}

// FieldsFromStruct lists v's output fields for the prompt's OUTPUT section.
func FieldsFromStruct(v any) ([]PromptField, error) {
	t, err := structType(v)
	if err != nil {
		return nil, err
	}
	ofs := outputFields(t)
	fields := make([]PromptField, 0, len(ofs))
	for _, f := range ofs {
		typ := strings.Join(f.enum, "|")
		if typ == "" {
			typ = describe(typeSchema(f.typ))
		}
		fields = append(fields, PromptField{
			Name:        f.name,
			Type:        typ,
			Required:    f.required,
			Description: f.desc,
		})
	}
	return fields, nil
}

// MustFieldsFromStruct panics on error; useful for prompt spec literals.
func MustFieldsFromStruct(v any) []PromptField {
	fields, err := FieldsFromStruct(v)
	if err != nil {
		panic(err)
	}
	return fields
}

// SchemaFromStruct derives the response schema for v. Nested structs and
// slices recurse.
func SchemaFromStruct(v any) (*llmclient.Schema, error) {
	t, err := structType(v)
	if err != nil {
		return nil, err
	}
	return structSchema(t), nil
}

func structSchema(t reflect.Type) *llmclient.Schema {
	out := &llmclient.Schema{Type: llmclient.TypeObject, Properties: map[string]*llmclient.Schema{}}
	for _, f := range outputFields(t) {
		prop := typeSchema(f.typ)
		prop.Description = f.desc
		prop.Enum = f.enum
		out.Properties[f.name] = prop
		if f.required {
			out.Required = append(out.Required, f.name)
		}
	}
	return out
}

func typeSchema(t reflect.Type) *llmclient.Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return &llmclient.Schema{Type: llmclient.TypeBoolean}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &llmclient.Schema{Type: llmclient.TypeInteger}
	case reflect.Float32, reflect.Float64:
		return &llmclient.Schema{Type: llmclient.TypeNumber}
	case reflect.Slice, reflect.Array:
		return &llmclient.Schema{Type: llmclient.TypeArray, Items: typeSchema(t.Elem())}
	case reflect.Struct:
		return structSchema(t)
	default:
		return &llmclient.Schema{Type: llmclient.TypeString}
	}
}

// describe names a schema type the way the prompt shows it, e.g. "array of object".
func describe(s *llmclient.Schema) string {
	if s.Type == llmclient.TypeArray && s.Items != nil {
		return "array of " + describe(s.Items)
	}
	return s.Type
}
