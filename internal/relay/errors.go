package relay

import "errors"

var (
	// ErrNoMapping means a packet referenced an entity or uuid the proxy
	// has no row for; the packet is stale and gets dropped, never
	// surfaced to the client.
	ErrNoMapping = errors.New("relay: no mapping for referenced identifier")

	// ErrBackendDead means a delivery resolved to a backend connection
	// that has already been marked dead.
	ErrBackendDead = errors.New("relay: backend connection is dead")

	errNoWireID = errors.New("relay: no wire id for packet kind")
)
