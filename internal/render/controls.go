package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pitabwire/journeybff/model"
)

// Control is the input control a field is edited with.
type Control string

const (
	ControlText       Control = "text"
	ControlTextArea   Control = "textarea"
	ControlEmail      Control = "email"
	ControlPhone      Control = "phone"
	ControlNationalID Control = "national_id"
	ControlCheckbox   Control = "checkbox"
	ControlDate       Control = "date"
	ControlDateTime   Control = "datetime"
	ControlInteger    Control = "integer"
	ControlDecimal    Control = "decimal"
	ControlMoney      Control = "money"
	ControlSelect     Control = "select"
)

// Wire formats of date and datetime values.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02T15:04:05"
)

var dateInputLayouts = []string{
	DateLayout, "02/01/2006", "02.01.2006", "2006/01/02", time.RFC3339, DateTimeLayout,
}

var dateTimeInputLayouts = []string{
	DateTimeLayout, time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02 15:04:05",
	"2006-01-02 15:04", DateLayout,
}

// ControlFor maps a field to its input control. A ui.inputType hint wins
// over the declared type.
func ControlFor(f model.Field) Control {
	switch strings.ToLower(f.UI.String("inputType")) {
	case "tel", "phone":
		return ControlPhone
	case "email":
		return ControlEmail
	case "nationalid", "national_id", "cnp", "ssn":
		return ControlNationalID
	case "textarea":
		return ControlTextArea
	}
	if f.UI.Bool("phoneCountrySelector") {
		return ControlPhone
	}
	switch f.Kind() {
	case model.FieldBoolean:
		return ControlCheckbox
	case model.FieldDate:
		return ControlDate
	case model.FieldDateTime:
		return ControlDateTime
	case model.FieldWholeNumber:
		return ControlInteger
	case model.FieldNumeric:
		return ControlDecimal
	case model.FieldMoney:
		return ControlMoney
	case model.FieldLongText:
		return ControlTextArea
	case model.FieldOptionSet:
		return ControlSelect
	default:
		return ControlText
	}
}

// ToWire converts edited input into the value the engine expects for the
// field. Blank input becomes null, except for free-text controls which
// submit "".
func ToWire(f model.Field, input string) (any, error) {
	control := ControlFor(f)
	in := strings.TrimSpace(input)
	if in == "" {
		switch control {
		case ControlText, ControlTextArea, ControlEmail:
			return "", nil
		case ControlCheckbox:
			return false, nil
		default:
			return nil, nil
		}
	}

	switch control {
	case ControlPhone:
		return phoneToWire(f, in), nil
	case ControlNationalID:
		return digits(in), nil
	case ControlCheckbox:
		b, ok := parseBool(in)
		if !ok {
			return nil, fmt.Errorf("%q is not a yes/no value", in)
		}
		return b, nil
	case ControlDate:
		t, err := parseTime(in, dateInputLayouts)
		if err != nil {
			return nil, fmt.Errorf("%q is not a date", in)
		}
		return t.Format(DateLayout), nil
	case ControlDateTime:
		t, err := parseTime(in, dateTimeInputLayouts)
		if err != nil {
			return nil, fmt.Errorf("%q is not a date and time", in)
		}
		return t.Format(DateTimeLayout), nil
	case ControlInteger:
		n, err := strconv.ParseInt(stripGrouping(in), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a whole number", in)
		}
		return n, nil
	case ControlDecimal, ControlMoney:
		n, err := strconv.ParseFloat(stripGrouping(in), 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%q is not a number", in)
		}
		if control == ControlMoney {
			n = math.Round(n*100) / 100
		}
		return n, nil
	case ControlSelect:
		return optionToWire(f, in)
	case ControlTextArea:
		return input, nil
	default:
		return in, nil
	}
}

// FormatForDisplay renders a wire value as the text shown in the field's
// control.
func FormatForDisplay(f model.Field, value any) string {
	if value == nil {
		return ""
	}
	s := valueString(value)
	switch ControlFor(f) {
	case ControlNationalID:
		return groupDigits(digits(s), f.UI.String("mask"))
	case ControlCheckbox:
		if b, ok := parseBool(s); ok && b {
			return "true"
		}
		return "false"
	case ControlDate:
		if t, err := parseTime(s, dateInputLayouts); err == nil {
			return t.Format(DateLayout)
		}
	case ControlDateTime:
		if t, err := parseTime(s, dateTimeInputLayouts); err == nil {
			return t.Format(DateTimeLayout)
		}
	case ControlSelect:
		for _, o := range f.OptionSetValues {
			if valueString(o.ID) == s {
				return o.DisplayName
			}
		}
	}
	return s
}

// InitialValue decodes the value the engine sent with the field.
func InitialValue(f model.Field) any {
	if len(f.Value) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(f.Value, &v); err != nil {
		return nil
	}
	return v
}

// phoneToWire keeps the digits and puts the country prefix in front. Input
// that already starts with "+" or "00" carries its own prefix.
func phoneToWire(f model.Field, in string) string {
	d := digits(in)
	if strings.HasPrefix(in, "+") {
		return "+" + d
	}
	if strings.HasPrefix(d, "00") {
		return "+" + d[2:]
	}
	prefix := f.UI.String("defaultCountryCode")
	if prefix == "" {
		return d
	}
	prefix = "+" + digits(prefix)
	return prefix + strings.TrimLeft(d, "0")
}

func optionToWire(f model.Field, in string) (any, error) {
	for _, o := range f.OptionSetValues {
		if valueString(o.ID) == in || strings.EqualFold(o.DisplayName, in) {
			return o.ID, nil
		}
	}
	if len(f.OptionSetValues) == 0 {
		return in, nil
	}
	return nil, fmt.Errorf("%q is not one of the options", in)
}

// groupDigits formats d with mask, where '#' and '9' take one digit each.
// Without a mask digits are grouped in threes.
func groupDigits(d, mask string) string {
	if d == "" {
		return ""
	}
	if mask == "" {
		var b strings.Builder
		for i, r := range d {
			if i > 0 && i%3 == 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
		}
		return b.String()
	}
	var b strings.Builder
	i := 0
	for _, m := range mask {
		if i >= len(d) {
			break
		}
		if m == '#' || m == '9' {
			b.WriteByte(d[i])
			i++
			continue
		}
		b.WriteRune(m)
	}
	b.WriteString(d[i:])
	return b.String()
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripGrouping(s string) string {
	return strings.NewReplacer(",", "", " ", "", "_", "").Replace(s)
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y", "on":
		return true, true
	case "false", "0", "no", "n", "off":
		return false, true
	}
	return false, false
}

func parseTime(s string, layouts []string) (time.Time, error) {
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func valueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
