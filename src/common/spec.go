package common

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Spec selects and parameterises a pluggable component: a "kind" key names the
// implementation and the other keys are its parameters.
//
//	publish:
//	  kind: linf
//	  threshold: 0.001
type Spec map[string]interface{}

// Kind returns the implementation name.
func (s Spec) Kind() string {
	k, _ := s["kind"].(string)
	return k
}

// Decode copies the parameters into out. Durations may be given as strings
// such as "30s", and numbers as strings.
func (s Spec) Decode(out interface{}) error {
	params := make(map[string]interface{}, len(s))
	for k, v := range s {
		if k != "kind" {
			params[k] = v
		}
	}

	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Metadata:         &md,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("%s: %v", s.Kind(), err)
	}
	if len(md.Unused) > 0 {
		return fmt.Errorf("%s: unknown parameters %v", s.Kind(), md.Unused)
	}
	return nil
}
