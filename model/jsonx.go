package model

import "encoding/json"

// Extra holds JSON members a payload carried that have no typed field.
// Steps and fields are pass-through objects: whatever the engine sends
// must reach the renderer unchanged in shape.
type Extra map[string]json.RawMessage

// marshalWithExtra encodes known and merges in extra members that known
// does not already define.
func marshalWithExtra(known any, extra Extra) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return b, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// unmarshalWithExtra decodes data into known and returns members whose keys
// are not listed in knownKeys.
func unmarshalWithExtra(data []byte, known any, knownKeys ...string) (Extra, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return Extra(all), nil
}
