// internal/driver/modbus/port_test.go
package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpackRegistersBigEndian(t *testing.T) {
	regs := unpackRegisters([]byte{0x00, 0x7F, 0x01, 0x02, 0xFF})

	require.Len(t, regs, 2)
	assert.Equal(t, uint16(0x007F), regs[0])
	assert.Equal(t, uint16(0x0102), regs[1])
}

func TestJoinFlags(t *testing.T) {
	assert.Equal(t, uint16(0x0000), joinFlags(0, 0))
	assert.Equal(t, uint16(0x8001), joinFlags(0x0080, 0x0001))
	// Upper bytes of each register are not flag bits.
	assert.Equal(t, uint16(0x0102), joinFlags(0xFF01, 0xAA02))
}

func TestUnitForChip(t *testing.T) {
	l := DefaultLayout
	assert.Equal(t, byte(1), unitFor(l, 0))
	assert.Equal(t, byte(10), unitFor(l, 9))
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNewRejectsUnitOverflow(t *testing.T) {
	l := DefaultLayout
	l.BaseUnitID = 240
	_, err := New(Config{Endpoint: "127.0.0.1:1502", Layout: l})
	assert.ErrorContains(t, err, "base unit id")
}
