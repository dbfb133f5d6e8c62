package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want Permission
	}{
		{
			name: "empty",
			csv:  "",
			want: None,
		},
		{
			name: "single",
			csv:  "rf.receive",
			want: RFReceive,
		},
		{
			name: "manifest scenario",
			csv:  "gpio.read,rf.transmit",
			want: GPIORead | RFTransmit,
		},
		{
			name: "whitespace around tokens",
			csv:  " storage.read , ui.create ",
			want: StorageRead | UICreate,
		},
		{
			name: "unknown tokens ignored",
			csv:  "gpio.read,bluetooth,rf.transmit",
			want: GPIORead | RFTransmit,
		},
		{
			name: "all unknown",
			csv:  "foo,bar",
			want: None,
		},
		{
			name: "trailing comma",
			csv:  "network,",
			want: Network,
		},
		{
			name: "full vocabulary",
			csv:  "rf.receive,rf.transmit,gpio.read,gpio.write,storage.read,storage.write,ui.create,network,system",
			want: RFReceive | RFTransmit | GPIORead | GPIOWrite | StorageRead | StorageWrite | UICreate | Network | System,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.csv))
		})
	}
}

func TestStringRoundTrip(t *testing.T) {
	tests := []Permission{
		None,
		RFTransmit,
		GPIORead | RFTransmit,
		StorageRead | StorageWrite | System,
		AnyRF,
	}

	for _, p := range tests {
		assert.Equal(t, p, Parse(p.String()), "round trip of %q", p.String())
	}
}

func TestStringOrder(t *testing.T) {
	// Names come out in declaration order regardless of input order.
	p := Parse("system,gpio.read,rf.transmit")
	assert.Equal(t, "rf.transmit,gpio.read,system", p.String())
}

func TestHas(t *testing.T) {
	granted := GPIORead | RFTransmit

	assert.True(t, granted.Has(GPIORead))
	assert.True(t, granted.Has(RFTransmit))
	assert.False(t, granted.Has(RFReceive))
	assert.False(t, granted.Has(System))

	// Any-bit: a composite mask passes when any one bit is granted.
	assert.True(t, granted.Has(AnyRF))
	assert.True(t, Permission(RFReceive).Has(AnyRF))
	assert.False(t, None.Has(AnyRF))
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, 9)
	assert.Equal(t, "rf.receive", names[0])
	assert.Equal(t, "system", names[8])
}
