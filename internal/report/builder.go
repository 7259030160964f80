// internal/report/builder.go
package report

import (
	"errors"
	"fmt"
	"time"

	cfg "github.com/Stani56/Stanis-Clock-sub003/internal/config"
	ringest "github.com/Stani56/Stanis-Clock-sub003/internal/report/ingest"
	rmodbus "github.com/Stani56/Stanis-Clock-sub003/internal/report/modbus"
)

// BuildStatusPlan converts the status config into a StatusPlan.
// Assumes config has already passed validation.
func BuildStatusPlan(s *cfg.StatusConfig, deviceName string) (StatusPlan, error) {
	if s == nil {
		return StatusPlan{}, errors.New("report: status block not configured")
	}
	return StatusPlan{
		Endpoint:   s.Endpoint,
		UnitID:     s.UnitID,
		BaseSlot:   s.Slot,
		DeviceName: deviceName,
	}, nil
}

// closingClient is an EndpointClient owning a connection.
type closingClient interface {
	EndpointClient
	Close() error
}

// BuildEndpointClient creates the transport client for the status block.
func BuildEndpointClient(s *cfg.StatusConfig) (EndpointClient, func() error, error) {
	timeout := time.Duration(s.TimeoutMs) * time.Millisecond

	var (
		c   closingClient
		err error
	)
	switch s.Transport {
	case cfg.TransportModbus:
		c, err = rmodbus.NewEndpointClient(rmodbus.Config{Endpoint: s.Endpoint, Timeout: timeout})
	case cfg.TransportIngest:
		c, err = ringest.NewEndpointClient(ringest.Config{Endpoint: s.Endpoint, Timeout: timeout})
	default:
		return nil, nil, fmt.Errorf("report: unknown status transport %q", s.Transport)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("report: status endpoint %s: %w", s.Endpoint, err)
	}
	return c, c.Close, nil
}

// BuildStatusReporter wires the status block reporter when configured.
// ok is false when the status block is disabled.
func BuildStatusReporter(c *cfg.Config) (r *StatusReporter, closeFn func() error, ok bool, err error) {
	if c.Status == nil {
		return nil, nil, false, nil
	}

	plan, err := BuildStatusPlan(c.Status, c.Device.Name)
	if err != nil {
		return nil, nil, false, err
	}
	cli, closeFn, err := BuildEndpointClient(c.Status)
	if err != nil {
		return nil, nil, false, err
	}
	r, err = NewStatusReporter(plan, cli)
	if err != nil {
		_ = closeFn()
		return nil, nil, false, err
	}
	return r, closeFn, true, nil
}
