// Package billing provides the client for the external billing/licensing
// service that receives telemetry metrics. The real client authenticates with
// a write-only publishable key; the no-op client stands in when no key is
// configured so the rest of the system behaves identically either way.
package billing

import (
	"context"

	"github.com/google/uuid"
)

// InstanceStatus is the reported lifecycle state of an installation.
type InstanceStatus string

const InstanceStatusRunning InstanceStatus = "running"

// Customer identifies a paying customer on the billing service.
type Customer struct {
	ID    string `json:"customer_id"`
	Email string `json:"email"`
}

// Instance identifies one installation belonging to a customer.
type Instance struct {
	ID string `json:"instance_id"`
}

// Client is the capability surface the telemetry scheduler needs from the
// billing service. Any call may fail; callers treat failures as non-fatal.
type Client interface {
	GetOrCreateCustomer(ctx context.Context, email string) (*Customer, error)
	GetOrCreateInstance(ctx context.Context, customerID string) (*Instance, error)
	SendMetric(ctx context.Context, instanceID, key string, value any) error
	SetStatus(ctx context.Context, instanceID string, status InstanceStatus) error
}

// NoopClient satisfies Client without any remote calls. Customers are keyed
// by their email and instances get a locally generated id, so the identity
// singleton is still established when no billing service is configured.
type NoopClient struct{}

// NewNoopClient returns a Client that performs no remote calls.
func NewNoopClient() *NoopClient { return &NoopClient{} }

func (*NoopClient) GetOrCreateCustomer(ctx context.Context, email string) (*Customer, error) {
	return &Customer{ID: email, Email: email}, nil
}

func (*NoopClient) GetOrCreateInstance(ctx context.Context, customerID string) (*Instance, error) {
	return &Instance{ID: uuid.NewString()}, nil
}

func (*NoopClient) SendMetric(ctx context.Context, instanceID, key string, value any) error {
	return nil
}

func (*NoopClient) SetStatus(ctx context.Context, instanceID string, status InstanceStatus) error {
	return nil
}
