package persistence

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

// EncodeInstance serializes a workflow instance to its stored form: one JSON
// document per instance, the unit of persistence and recovery.
func EncodeInstance(inst *api.Instance) ([]byte, error) {
	if inst == nil {
		return nil, fmt.Errorf("nil instance")
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return nil, fmt.Errorf("encode instance %s: %w", inst.ID, err)
	}
	return data, nil
}

// DecodeInstance deserializes a stored instance record.
func DecodeInstance(data []byte) (*api.Instance, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty instance record")
	}
	var inst api.Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("decode instance: %w", err)
	}
	return &inst, nil
}
