// internal/report/ingest/client.go
package ingest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Raw Ingest v1 framing. The 10-byte header is fixed:
//
//	0-1  magic "RI"
//	2    version
//	3    area
//	4-5  unit id
//	6-7  start address
//	8-9  register count
//	10+  registers, big-endian
const (
	headerLen = 10
	version1  = 0x01

	// status blocks always land in holding registers
	areaHoldingRegisters byte = 3

	statusOK       byte = 0x00
	statusRejected byte = 0x01
)

var magic = [2]byte{'R', 'I'}

// ErrRejected is returned when the endpoint refuses a packet.
var ErrRejected = errors.New("report ingest: rejected")

// EndpointClient sends each write as one packet over a fresh connection.
type EndpointClient struct {
	endpoint string
	timeout  time.Duration
	dialer   net.Dialer
}

// Config selects the endpoint. A zero Timeout means two seconds.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("report ingest: endpoint required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &EndpointClient{
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		dialer:   net.Dialer{Timeout: cfg.Timeout},
	}, nil
}

// Close is a no-op; connections never outlive a write.
func (c *EndpointClient) Close() error { return nil }

// WriteRegisters delivers regs as one holding-register packet and waits
// for the one-byte verdict.
func (c *EndpointClient) WriteRegisters(ctx context.Context, unitID uint8, addr uint16, regs []uint16) error {
	if len(regs) == 0 || len(regs) > 0xFFFF {
		return fmt.Errorf("report ingest: bad register count %d", len(regs))
	}
	pkt := encodePacket(areaHoldingRegisters, unitID, addr, regs)

	conn, err := c.dialer.DialContext(ctx, "tcp", c.endpoint)
	if err != nil {
		return fmt.Errorf("report ingest: dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(pkt); err != nil {
		return fmt.Errorf("report ingest: write: %w", err)
	}

	var verdict [1]byte
	if _, err := io.ReadFull(conn, verdict[:]); err != nil {
		return fmt.Errorf("report ingest: read status: %w", err)
	}
	switch verdict[0] {
	case statusOK:
		return nil
	case statusRejected:
		return ErrRejected
	default:
		return fmt.Errorf("report ingest: unknown status 0x%02x", verdict[0])
	}
}

func encodePacket(area byte, unitID uint8, addr uint16, regs []uint16) []byte {
	pkt := make([]byte, 0, headerLen+2*len(regs))
	pkt = append(pkt, magic[0], magic[1], version1, area)
	pkt = binary.BigEndian.AppendUint16(pkt, uint16(unitID))
	pkt = binary.BigEndian.AppendUint16(pkt, addr)
	pkt = binary.BigEndian.AppendUint16(pkt, uint16(len(regs)))
	for _, r := range regs {
		pkt = binary.BigEndian.AppendUint16(pkt, r)
	}
	return pkt
}
