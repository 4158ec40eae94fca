// Package telemetry defines the wire model shared by every ingestion
// producer: a batch of messages, each carrying device metadata, a
// timestamp, and an ordered list of sensor measurements.
//
// Measurements form a closed union (Simple, Tuple, Geometry, Binary).
// The union is sealed with an unexported interface method, and the
// storage mapping is that method, so a new variant cannot be added
// without also deciding how it is persisted.
package telemetry

import (
	"encoding/json"
	"fmt"
)

// MetaData identifies the device a message originates from. Role is
// only present on bus payloads, where the device declares its own
// role; HTTP submissions carry the role in the bearer token instead.
type MetaData struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// Message is one unit of producer input: a set of readings taken by a
// single device at a single point in time. Immutable after decoding.
type Message struct {
	Meta      MetaData      `json:"meta"`
	Data      []Measurement `json:"data"`
	Timestamp int64         `json:"timestamp"`
}

// ParseBatch decodes the shared payload shape, a JSON array of
// messages. Both the HTTP request body and the MQTT payload use it.
func ParseBatch(payload []byte) ([]Message, error) {
	var messages []Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		return nil, fmt.Errorf("parsing message batch: %w", err)
	}
	return messages, nil
}
