package discovery

import (
	"fmt"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/makkenzo/license-manager/internal/config"
	"go.uber.org/zap"
)

type Registration struct {
	client    *consulapi.Client
	serviceID string
	logger    *zap.Logger
}

// Register announces the service to the local consul agent with an HTTP
// health check against /healthz.
func Register(cfg *config.Config, logger *zap.Logger) (*Registration, error) {
	log := logger.Named("Consul")

	registration, err := newServiceRegistration(cfg)
	if err != nil {
		return nil, err
	}

	consulCfg := consulapi.DefaultConfig()
	consulCfg.Address = cfg.Consul.Address

	client, err := consulapi.NewClient(consulCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	if err := client.Agent().ServiceRegister(registration); err != nil {
		return nil, fmt.Errorf("failed to register service: %w", err)
	}

	log.Info("Registered with Consul",
		zap.String("service_id", registration.ID),
		zap.String("address", cfg.Consul.Address),
	)

	return &Registration{client: client, serviceID: registration.ID, logger: log}, nil
}

func (r *Registration) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("failed to deregister service %s: %w", r.serviceID, err)
	}
	r.logger.Info("Deregistered from Consul", zap.String("service_id", r.serviceID))
	return nil
}

func newServiceRegistration(cfg *config.Config) (*consulapi.AgentServiceRegistration, error) {
	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid server port %q: %w", cfg.Server.Port, err)
	}

	return &consulapi.AgentServiceRegistration{
		ID:      cfg.Consul.ServiceID,
		Name:    cfg.Consul.ServiceName,
		Address: cfg.Server.Host,
		Port:    port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", cfg.Server.Host, port),
			Interval:                       cfg.Consul.CheckInterval,
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: cfg.Consul.DeregisterCriticalServiceAfter,
		},
		Tags: []string{"licenses", "v1"},
	}, nil
}
