package journey

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/pitabwire/journeybff/model"
)

// AdvanceResult is the engine's navigation response merged with the
// resolved step of the instance it landed on.
type AdvanceResult struct {
	ExternalID string
	Navigation json.RawMessage
	Step       *model.Step
}

// MarshalJSON emits the navigation response members at the top level with
// externalId and step set on top.
func (r AdvanceResult) MarshalJSON() ([]byte, error) {
	out := map[string]json.RawMessage{}
	if nav := gjson.ParseBytes(r.Navigation); nav.IsObject() {
		nav.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = json.RawMessage(value.Raw)
			return true
		})
	}

	id, err := json.Marshal(r.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("advance result: %w", err)
	}
	out["externalId"] = id

	step, err := json.Marshal(r.Step)
	if err != nil {
		return nil, fmt.Errorf("advance result: %w", err)
	}
	out["step"] = step
	return json.Marshal(out)
}
