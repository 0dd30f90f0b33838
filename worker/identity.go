package worker

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultIdentityQuery asks the analyzer for its identity string.
	DefaultIdentityQuery = "IDN?;"

	// DefaultIdentifyTimeout bounds each transfer of the identity query.
	DefaultIdentifyTimeout = 5 * time.Second

	identityReplySize = 256
)

// Identity is the parsed identification reply of the instrument,
// e.g. "HEWLETT PACKARD,8753C,0,4.13".
type Identity struct {
	Manufacturer string
	Model        string
	Serial       string
	Firmware     string
}

func (id Identity) String() string {
	return strings.Join([]string{id.Manufacturer, id.Model, id.Serial, id.Firmware}, ",")
}

// ParseIdentity parses a comma separated identification reply. The manufacturer
// and model fields are required.
func ParseIdentity(reply string) (Identity, error) {
	fields := strings.Split(strings.TrimSpace(reply), ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) < 2 || fields[1] == "" {
		return Identity{}, fmt.Errorf("%w: malformed identity %q", ErrIdentity, reply)
	}

	id := Identity{Manufacturer: fields[0], Model: fields[1]}
	if len(fields) > 2 {
		id.Serial = fields[2]
	}
	if len(fields) > 3 {
		id.Firmware = fields[3]
	}

	return id, nil
}

// Identifier obtains the device identity.
type Identifier func(ctx context.Context, ex *Exchange) (Identity, error)

// QueryIdentity returns an Identifier that writes query and parses the reply.
func QueryIdentity(query string, timeout time.Duration) Identifier {
	return func(_ context.Context, ex *Exchange) (Identity, error) {
		reply, outcome := ex.Query(query, identityReplySize, timeout)
		if !outcome.IsOK() {
			return Identity{}, fmt.Errorf("%w: query %q: %w", ErrIdentity, query, outcome.Err())
		}

		return ParseIdentity(reply)
	}
}
