package system

import "context"

// Service represents a lifecycle-managed component. Application modules
// implement this interface so the system manager can start and stop them
// deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService satisfies Service for modules that carry no background work of
// their own but still belong in the lifecycle ledger.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string                   { return n.ServiceName }
func (n NoopService) Start(_ context.Context) error  { return nil }
func (n NoopService) Stop(_ context.Context) error   { return nil }
