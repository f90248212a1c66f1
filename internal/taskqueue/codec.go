package taskqueue

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/AutonomosCdM/smartSalud-V2/pkg/api"
)

func encodeStartPayload(p *StartPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("start-workflow task has no payload")
	}
	return json.Marshal(p)
}

func decodeStartPayload(data []byte) (*StartPayload, error) {
	var p StartPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode start payload: %w", err)
	}
	return &p, nil
}

func encodeEventPayload(ev *api.Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("deliver-event task has no event")
	}
	return json.Marshal(ev)
}

func decodeEventPayload(data []byte) (*api.Event, error) {
	var ev api.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	return &ev, nil
}
