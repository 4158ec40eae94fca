package sink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/eden/pkg/auth"
	"github.com/tinyland-inc/eden/pkg/blob"
	"github.com/tinyland-inc/eden/pkg/bus"
	"github.com/tinyland-inc/eden/pkg/telemetry"
)

type failingBlobStore struct{}

func (failingBlobStore) Put(context.Context, []byte) (string, error) {
	return "", errors.New("blob store unavailable")
}

func (failingBlobStore) Get(context.Context, string) ([]byte, error) {
	return nil, blob.ErrNotFound
}

func rowEnvelope(data ...telemetry.Measurement) bus.Envelope {
	return bus.Envelope{
		Agent: &auth.Agent{Name: "device-42", Role: "sensor"},
		Msg: telemetry.Message{
			Meta:      telemetry.MetaData{Name: "office"},
			Timestamp: 1472745514,
			Data:      data,
		},
	}
}

func TestNewRow_MapsAllVariants(t *testing.T) {
	blobs := blob.NewMemStore()
	payload := []byte("camera frame")

	row := NewRow(context.Background(), rowEnvelope(
		telemetry.Measurement{Sensor: "temperature", Unit: "celsius", Value: telemetry.Simple(21.5)},
		telemetry.Measurement{Sensor: "accel", Unit: "m/s^2", Value: telemetry.Tuple{0, 0, 9.8}},
		telemetry.Measurement{Sensor: "position", Unit: "wgs84", Value: telemetry.Geometry{
			Type: "Point", Coordinates: json.RawMessage(`[13.37,52.51]`),
		}},
		telemetry.Measurement{Sensor: "snapshot", Unit: "jpeg", Value: telemetry.Binary(payload)},
	), blobs, zerolog.Nop())

	if row.Timestamp != 1472745514 {
		t.Errorf("timestamp: got %d", row.Timestamp)
	}
	if len(row.SensorValues) != 4 {
		t.Fatalf("sensor values: got %d, want 4", len(row.SensorValues))
	}
	if v := row.SensorValues["temperature"]; v.Value != 21.5 || v.Unit != "celsius" {
		t.Errorf("temperature: got %+v", v)
	}
	if v := row.SensorValues["snapshot"]; v.Value != blob.Digest(payload) {
		t.Errorf("snapshot: got %v, want content digest", v.Value)
	}

	// The raw bytes live in the blob store, not the row.
	restored, err := blobs.Get(context.Background(), blob.Digest(payload))
	if err != nil {
		t.Fatalf("blob get: %v", err)
	}
	if string(restored) != string(payload) {
		t.Errorf("blob round trip: got %q", restored)
	}

	if row.Device.DeviceName != "office" || row.Device.AgentName != "device-42" || row.Device.AgentRole != "sensor" {
		t.Errorf("device meta: got %+v", row.Device)
	}
}

func TestNewRow_BlobFailureDropsOnlyThatSensor(t *testing.T) {
	row := NewRow(context.Background(), rowEnvelope(
		telemetry.Measurement{Sensor: "temperature", Unit: "celsius", Value: telemetry.Simple(21.5)},
		telemetry.Measurement{Sensor: "snapshot", Unit: "jpeg", Value: telemetry.Binary("frame")},
	), failingBlobStore{}, zerolog.Nop())

	if _, ok := row.SensorValues["snapshot"]; ok {
		t.Error("snapshot should be omitted after blob failure")
	}
	if _, ok := row.SensorValues["temperature"]; !ok {
		t.Error("temperature should survive the blob failure")
	}
}

func TestRowParams_CanonicalOrder(t *testing.T) {
	row := NewRow(context.Background(), rowEnvelope(
		telemetry.Measurement{Sensor: "zeta", Unit: "u", Value: telemetry.Simple(1)},
		telemetry.Measurement{Sensor: "alpha", Unit: "u", Value: telemetry.Simple(2)},
	), blob.NewMemStore(), zerolog.Nop())

	params, err := row.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if len(params) != 3 {
		t.Fatalf("params: got %d values, want 3", len(params))
	}
	if params[0] != int64(1472745514) {
		t.Errorf("ts param: got %v", params[0])
	}

	sensorJSON, ok := params[1].(string)
	if !ok {
		t.Fatalf("sensor param: got %T, want string", params[1])
	}
	// encoding/json sorts map keys: alpha before zeta regardless of
	// arrival order.
	if strings.Index(sensorJSON, "alpha") > strings.Index(sensorJSON, "zeta") {
		t.Errorf("sensor values not in canonical order: %s", sensorJSON)
	}

	deviceJSON, ok := params[2].(string)
	if !ok {
		t.Fatalf("device param: got %T, want string", params[2])
	}
	var device DeviceMeta
	if err := json.Unmarshal([]byte(deviceJSON), &device); err != nil {
		t.Fatalf("device param: %v", err)
	}
	if device.AgentName != "device-42" {
		t.Errorf("device param: got %+v", device)
	}
}
