package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tembedos/runtime/internal/hal"
)

func TestRadioInjectAndRead(t *testing.T) {
	r := NewRadio(nil)

	_, err := r.ReadSignal()
	assert.ErrorIs(t, err, hal.ErrNoSignal)

	r.Inject(&hal.Signal{Frequency: 433920000, RSSI: -70, Data: []byte{0xAB}})
	sig, err := r.ReadSignal()
	require.NoError(t, err)
	assert.Equal(t, uint32(433920000), sig.Frequency)
	assert.Equal(t, []byte{0xAB}, sig.Data)

	// Queue drained.
	_, err = r.ReadSignal()
	assert.ErrorIs(t, err, hal.ErrNoSignal)
}

func TestRadioFrequencyRange(t *testing.T) {
	r := NewRadio(nil)

	require.NoError(t, r.SetFrequency(868000000))
	assert.Equal(t, uint32(868000000), r.Frequency())

	assert.Error(t, r.SetFrequency(100000000))
	assert.Error(t, r.SetFrequency(1000000000))
	assert.Equal(t, uint32(868000000), r.Frequency())
}

func TestRadioModulationAndPresets(t *testing.T) {
	r := NewRadio(nil)

	require.NoError(t, r.SetModulation("GFSK"))
	assert.Error(t, r.SetModulation("LORA"))

	require.NoError(t, r.LoadPreset("AM650"))
	assert.Error(t, r.LoadPreset("XX999"))
}

func TestGPIOModes(t *testing.T) {
	g := NewGPIO()

	// Unconfigured pins reject reads and writes.
	assert.Error(t, g.Write(4, true))
	_, err := g.Read(4)
	assert.Error(t, err)

	require.NoError(t, g.Setup(4, "output"))
	require.NoError(t, g.Write(4, true))

	level, err := g.Read(4)
	require.NoError(t, err)
	assert.True(t, level)

	assert.Error(t, g.Setup(5, "bidirectional"))
}

func TestStorageFilesAndConfig(t *testing.T) {
	s := NewStorage()

	require.NoError(t, s.WriteText("a.txt", "hello"))
	content, err := s.ReadText("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", content)

	require.NoError(t, s.Delete("a.txt"))
	_, err = s.ReadText("a.txt")
	assert.Error(t, err)

	require.NoError(t, s.SetConfig("brightness", "80"))
	v, err := s.GetConfig("brightness")
	require.NoError(t, err)
	assert.Equal(t, "80", v)
}

func TestNetworkScanAndConnect(t *testing.T) {
	n := NewNetwork()

	aps, err := n.Scan()
	require.NoError(t, err)
	assert.NotEmpty(t, aps)

	require.NoError(t, n.Connect(aps[0].SSID, "password"))
	ip, err := n.IPAddress()
	require.NoError(t, err)
	assert.NotEmpty(t, ip)

	require.NoError(t, n.Disconnect())
}
