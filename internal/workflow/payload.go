package workflow

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// TargetData is the per-target section of a data-gathering payload.
type TargetData struct {
	Status  string         `mapstructure:"status" json:"status,omitempty"`
	Summary string         `mapstructure:"summary" json:"summary,omitempty"`
	Extra   map[string]any `mapstructure:",remain" json:"-"`
}

// Gathered decodes the per-target objects of payload, taken from the first
// of the definition's payload keys that is present. It returns an empty
// map when none is present.
func (d *Definition) Gathered(payload map[string]any) (map[string]TargetData, error) {
	keys := d.PayloadKeys
	if len(keys) == 0 {
		keys = defaultPayloadKeys
	}
	for _, key := range keys {
		section, ok := payload[key]
		if !ok {
			continue
		}
		var out map[string]TargetData
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &out,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(section); err != nil {
			return nil, fmt.Errorf("decode payload %q: %w", key, err)
		}
		return out, nil
	}
	return map[string]TargetData{}, nil
}
