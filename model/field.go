package model

import (
	"encoding/json"
	"strings"
)

// FieldType is the normalized kind of a step field.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldBoolean     FieldType = "boolean"
	FieldDate        FieldType = "date"
	FieldDateTime    FieldType = "datetime"
	FieldWholeNumber FieldType = "wholenumber"
	FieldNumeric     FieldType = "numeric"
	FieldMoney       FieldType = "money"
	FieldLongText    FieldType = "longtext"
	FieldOptionSet   FieldType = "optionset"
	// FieldDefault covers any type the engine sends that is not recognized.
	FieldDefault FieldType = "default"
)

var fieldTypeAliases = map[string]FieldType{
	"text":          FieldText,
	"string":        FieldText,
	"boolean":       FieldBoolean,
	"bool":          FieldBoolean,
	"date":          FieldDate,
	"datetime":      FieldDateTime,
	"wholenumber":   FieldWholeNumber,
	"integer":       FieldWholeNumber,
	"int":           FieldWholeNumber,
	"numeric":       FieldNumeric,
	"decimal":       FieldNumeric,
	"number":        FieldNumeric,
	"money":         FieldMoney,
	"currency":      FieldMoney,
	"longtext":      FieldLongText,
	"textarea":      FieldLongText,
	"multilinetext": FieldLongText,
	"richtext":      FieldLongText,
	"html":          FieldLongText,
	"optionset":     FieldOptionSet,
	"picklist":      FieldOptionSet,
}

// NormalizeFieldType maps the engine's spelling of a type ("WholeNumber",
// "whole-number", "option_set") to a FieldType.
func NormalizeFieldType(raw string) FieldType {
	key := strings.ToLower(raw)
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	if t, ok := fieldTypeAliases[key]; ok {
		return t
	}
	return FieldDefault
}

// RequiredLevel is the engine's requirement flag for a field:
// 0 none, 1 recommended, 2 required.
type RequiredLevel int

const (
	RequiredNone        RequiredLevel = 0
	RequiredRecommended RequiredLevel = 1
	RequiredRequired    RequiredLevel = 2
)

// Field is a single input descriptor of a step.
type Field struct {
	Name            string           `json:"name"`
	DisplayName     string           `json:"displayName,omitempty"`
	Type            string           `json:"type"`
	Value           json.RawMessage  `json:"value,omitempty"`
	IsReadOnly      bool             `json:"isReadOnly"`
	RequiredLevel   RequiredLevel    `json:"requiredLevel"`
	OptionSetValues []OptionSetValue `json:"optionSetValues,omitempty"`
	IsVisible       *bool            `json:"isVisible,omitempty"`
	UI              UIHints          `json:"ui,omitempty"`

	Extra Extra `json:"-"`
}

var fieldKeys = []string{
	"name", "displayName", "type", "value", "isReadOnly", "requiredLevel",
	"optionSetValues", "isVisible", "ui",
}

type fieldAlias Field

func (f Field) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(fieldAlias(f), f.Extra)
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var a fieldAlias
	extra, err := unmarshalWithExtra(data, &a, fieldKeys...)
	if err != nil {
		return err
	}
	*f = Field(a)
	f.Extra = extra
	return nil
}

// Kind returns the normalized field type.
func (f *Field) Kind() FieldType {
	return NormalizeFieldType(f.Type)
}

// Visible reports whether the field should be displayed. Absent means visible.
func (f *Field) Visible() bool {
	return f.IsVisible == nil || *f.IsVisible
}

// Required reports whether the engine marks the field as required.
func (f *Field) Required() bool {
	return f.RequiredLevel >= RequiredRequired
}

// OptionSetValue is one choice of an option-set field.
type OptionSetValue struct {
	ID          any    `json:"id"`
	DisplayName string `json:"displayName"`
}

// UIHints is free-form presentation metadata attached to a field.
// Known keys: placeholder, inputType, mask, phoneCountrySelector,
// defaultCountry, defaultCountryCode.
type UIHints map[string]any

// String returns the string value at key, or "".
func (u UIHints) String(key string) string {
	if u == nil {
		return ""
	}
	s, _ := u[key].(string)
	return s
}

// Bool returns the boolean value at key, or false.
func (u UIHints) Bool(key string) bool {
	if u == nil {
		return false
	}
	b, _ := u[key].(bool)
	return b
}

// Merge returns a shallow merge of u and over. Keys in over win.
func (u UIHints) Merge(over UIHints) UIHints {
	if len(u) == 0 && len(over) == 0 {
		return u
	}
	out := make(UIHints, len(u)+len(over))
	for k, v := range u {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}
