package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/eden/pkg/blob"
	"github.com/tinyland-inc/eden/pkg/bus"
)

// StoredValue is one sensor's persisted value together with its unit.
type StoredValue struct {
	Value any    `json:"value"`
	Unit  string `json:"unit"`
}

// DeviceMeta records where a row came from: the device that took the
// readings and the agent identity that submitted them.
type DeviceMeta struct {
	DeviceName string `json:"device_name"`
	AgentName  string `json:"agent_name"`
	AgentRole  string `json:"agent_role"`
}

// Row is the storage-ready form of one message: one row per message,
// sensor name → stored value.
type Row struct {
	Timestamp    int64
	SensorValues map[string]StoredValue
	Device       DeviceMeta
}

// NewRow maps an authenticated envelope to a row. Binary payloads are
// offloaded to the blob store and replaced by their digest; a failed
// offload drops only that sensor from the row, the remaining sensors
// are still stored.
func NewRow(ctx context.Context, env bus.Envelope, blobs blob.Store, logger zerolog.Logger) Row {
	values := make(map[string]StoredValue, len(env.Msg.Data))
	for _, m := range env.Msg.Data {
		stored, err := m.StoredValue(ctx, blobs)
		if err != nil {
			logger.Error().Err(err).
				Str("device", env.Msg.Meta.Name).
				Str("sensor", m.Sensor).
				Msg("measurement dropped from row")
			continue
		}
		values[m.Sensor] = StoredValue{Value: stored, Unit: m.Unit}
	}

	return Row{
		Timestamp:    env.Msg.Timestamp,
		SensorValues: values,
		Device: DeviceMeta{
			DeviceName: env.Msg.Meta.Name,
			AgentName:  env.Agent.Name,
			AgentRole:  env.Agent.Role,
		},
	}
}

// Params renders the row as insert-statement parameters: timestamp,
// sensor map, device metadata. Both objects are serialized as JSON;
// encoding/json writes map keys in sorted order, which gives the
// canonical serialization the row contract asks for.
func (r Row) Params() ([]any, error) {
	sensorValues, err := json.Marshal(r.SensorValues)
	if err != nil {
		return nil, fmt.Errorf("serializing sensor values: %w", err)
	}
	device, err := json.Marshal(r.Device)
	if err != nil {
		return nil, fmt.Errorf("serializing device metadata: %w", err)
	}
	return []any{r.Timestamp, string(sensorValues), string(device)}, nil
}
