package health

import "context"

// StoragePinger checks storage availability.
type StoragePinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an embedding or language model provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

// PingFunc adapts a function to StoragePinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }
