package telemetry

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// BlobPutter stores a binary payload and returns its content digest.
// Satisfied by blob.Store; declared here so the measurement union does
// not depend on a concrete blob backend.
type BlobPutter interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// Value is the closed set of measurement payload variants. The
// unexported method seals the union and doubles as the storage
// mapping: every variant must decide what lands in a stored row.
type Value interface {
	storedValue(ctx context.Context, blobs BlobPutter) (any, error)
}

// Simple is a single numeric reading.
type Simple float64

// Tuple is an ordered sequence of numeric readings, e.g. a 3-axis
// accelerometer sample.
type Tuple []float64

// Geometry is a GeoJSON-shaped reading. Coordinates are kept raw; the
// gateway never interprets them, it only passes them through to
// storage.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Binary is a raw byte payload (base64 string on the wire). It is
// never stored inline: the stored value is the content digest returned
// by the blob store.
type Binary []byte

func (s Simple) storedValue(context.Context, BlobPutter) (any, error) {
	return float64(s), nil
}

func (t Tuple) storedValue(context.Context, BlobPutter) (any, error) {
	return []float64(t), nil
}

func (g Geometry) storedValue(context.Context, BlobPutter) (any, error) {
	return g, nil
}

func (b Binary) storedValue(ctx context.Context, blobs BlobPutter) (any, error) {
	digest, err := blobs.Put(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("offloading binary payload: %w", err)
	}
	return digest, nil
}

// Measurement is one sensor reading within a message. Sensor and Unit
// are always present; exactly one Value variant is active.
type Measurement struct {
	Sensor string
	Unit   string
	Value  Value
}

// StoredValue maps the measurement's payload to its storage
// representation: the number itself for Simple, the slice for Tuple,
// the nested structure for Geometry, and the blob digest for Binary.
func (m Measurement) StoredValue(ctx context.Context, blobs BlobPutter) (any, error) {
	return m.Value.storedValue(ctx, blobs)
}

type measurementWire struct {
	Sensor string          `json:"sensor"`
	Value  json.RawMessage `json:"value"`
	Unit   string          `json:"unit"`
}

// UnmarshalJSON infers the active variant from the shape of the value:
// a number is Simple, an array is Tuple, an object is Geometry, and a
// string is base64-encoded Binary.
func (m *Measurement) UnmarshalJSON(data []byte) error {
	var wire measurementWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Sensor == "" {
		return fmt.Errorf("measurement without sensor name")
	}

	value, err := decodeValue(wire.Value)
	if err != nil {
		return fmt.Errorf("measurement %q: %w", wire.Sensor, err)
	}

	m.Sensor = wire.Sensor
	m.Unit = wire.Unit
	m.Value = value
	return nil
}

func (m Measurement) MarshalJSON() ([]byte, error) {
	var value any
	switch v := m.Value.(type) {
	case Binary:
		value = base64.StdEncoding.EncodeToString(v)
	default:
		value = v
	}
	return json.Marshal(measurementWire{
		Sensor: m.Sensor,
		Value:  mustRaw(value),
		Unit:   m.Unit,
	})
}

func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// All variants are marshalable by construction.
		panic(err)
	}
	return raw
}

func decodeValue(raw json.RawMessage) (Value, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("missing value")
	}

	switch trimmed[0] {
	case '[':
		var tuple Tuple
		if err := json.Unmarshal(trimmed, &tuple); err != nil {
			return nil, fmt.Errorf("decoding tuple value: %w", err)
		}
		return tuple, nil
	case '{':
		var geom Geometry
		if err := json.Unmarshal(trimmed, &geom); err != nil {
			return nil, fmt.Errorf("decoding geometry value: %w", err)
		}
		if geom.Type == "" {
			return nil, fmt.Errorf("geometry value without type")
		}
		return geom, nil
	case '"':
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, fmt.Errorf("decoding binary value: %w", err)
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding binary value: %w", err)
		}
		return Binary(decoded), nil
	default:
		var number Simple
		if err := json.Unmarshal(trimmed, &number); err != nil {
			return nil, fmt.Errorf("decoding numeric value: %w", err)
		}
		return number, nil
	}
}
