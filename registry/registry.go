package registry

import "context"

// ServiceInstance is what a server publishes about itself.
type ServiceInstance struct {
	Addr    string   `json:"addr"`
	Weight  int      `json:"weight"` // Weight for load balancing
	Version string   `json:"version"`
	Methods []string `json:"methods"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Close() error
}
