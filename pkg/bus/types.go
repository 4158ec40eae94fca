package bus

import (
	"github.com/tinyland-inc/eden/pkg/auth"
	"github.com/tinyland-inc/eden/pkg/telemetry"
)

// Envelope pairs a message with the authenticated identity of the
// producer that submitted it. The agent pointer is shared read-only
// between the envelope and every row derived from it.
type Envelope struct {
	Agent *auth.Agent
	Msg   telemetry.Message
}
