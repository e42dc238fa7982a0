package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSSink mirrors every published event onto a NATS subject, one subject
// per event kind so external consumers can subscribe selectively
// ("<prefix>.swarm.task.completed") rather than filtering a firehose.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSSink connects to url and returns a Sink publishing under
// "<prefix>.<kind>". Connection errors are returned rather than silently
// swallowed, since a misconfigured URL at startup should fail loudly — once
// registered on the Bus, a publish-time failure (marshal or publish error)
// is dropped without being logged, per the Bus's own swallow-sink-failures
// contract.
func NewNATSSink(url, prefix string) (*NATSSink, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NATSSink{nc: nc, prefix: prefix}, nil
}

// Publish implements Sink.
func (s *NATSSink) Publish(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = s.nc.Publish(fmt.Sprintf("%s.%s", s.prefix, e.Kind), data)
}

// Close drains and closes the underlying connection.
func (s *NATSSink) Close() {
	_ = s.nc.Drain()
}
