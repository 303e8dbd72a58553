package types

import "context"

// Server defines a long-running protocol server bound to its own streams
type Server interface {
	Serve(ctx context.Context) error
}
