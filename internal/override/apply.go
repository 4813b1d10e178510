package override

import (
	"sort"

	"github.com/pitabwire/journeybff/model"
)

// Apply merges entry into a copy of step and returns it. step is not
// modified.
//
// The first directive for a field name wins. A directive replaces
// isVisible only when it carries a boolean and merges its UI hints over
// the live ones. Fields are then ordered by explicit order (else original
// index), overridden before plain at equal order, then by original index.
// Hidden fields keep their place with isVisible=false.
func Apply(step *model.Step, entry *StepOverride) *model.Step {
	if step == nil {
		return nil
	}
	out := *step
	if entry == nil || len(step.Fields) == 0 {
		return &out
	}

	lookup := make(map[string]*FieldOverride, len(entry.Fields))
	for i := range entry.Fields {
		fo := &entry.Fields[i]
		if _, seen := lookup[fo.Name]; !seen {
			lookup[fo.Name] = fo
		}
	}

	type ranked struct {
		field      model.Field
		key        float64
		overridden bool
		index      int
	}
	items := make([]ranked, len(step.Fields))
	for i, f := range step.Fields {
		item := ranked{field: f, key: float64(i), index: i}
		if fo, ok := lookup[f.Name]; ok {
			item.overridden = true
			if visible, ok := fo.Visibility(); ok {
				item.field.IsVisible = &visible
			}
			if len(fo.UI) > 0 {
				item.field.UI = f.UI.Merge(fo.UI)
			}
			if order, ok := fo.Rank(); ok {
				item.key = order
			}
		}
		items[i] = item
	}

	sort.SliceStable(items, func(a, b int) bool {
		x, y := items[a], items[b]
		if x.key != y.key {
			return x.key < y.key
		}
		if x.overridden != y.overridden {
			return x.overridden
		}
		return x.index < y.index
	})

	out.Fields = make([]model.Field, len(items))
	for i, item := range items {
		out.Fields[i] = item.field
	}
	return &out
}
