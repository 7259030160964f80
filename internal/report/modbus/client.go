// internal/report/modbus/client.go
package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// maxWriteRegisters is the FC16 quantity limit.
const maxWriteRegisters = 123

// EndpointClient holds one TCP connection to a status endpoint.
// Writes are serialized because the slave id is set per request.
type EndpointClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// Config selects the endpoint.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// NewEndpointClient connects to cfg.Endpoint.
func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("report modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("report modbus: connect %s: %w", cfg.Endpoint, err)
	}

	return &EndpointClient{handler: h, client: modbus.NewClient(h)}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// WriteRegisters writes regs as holding registers starting at addr (FC16).
func (c *EndpointClient) WriteRegisters(ctx context.Context, unitID uint8, addr uint16, regs []uint16) error {
	if len(regs) == 0 || len(regs) > maxWriteRegisters {
		return fmt.Errorf("report modbus: %d registers outside 1..%d", len(regs), maxWriteRegisters)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID
	if _, err := c.client.WriteMultipleRegisters(addr, uint16(len(regs)), registerBytes(regs)); err != nil {
		return fmt.Errorf("report modbus: unit %d addr %d: %w", unitID, addr, err)
	}
	return nil
}

// registerBytes lays regs out big-endian, as Modbus expects.
func registerBytes(regs []uint16) []byte {
	out := make([]byte, 0, 2*len(regs))
	for _, r := range regs {
		out = binary.BigEndian.AppendUint16(out, r)
	}
	return out
}
