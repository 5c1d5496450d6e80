// Package connectors defines the contract for inbound message transports.
package connectors

import "context"

// Connector is a long-running inbound transport. Start blocks until ctx is
// cancelled or the connector fails permanently.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
}
