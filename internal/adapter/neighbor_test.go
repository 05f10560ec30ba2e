package adapter

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const procARP = `IP address       HW type     Flags       HW address            Mask     Device
192.168.1.1      0x1         0x2         10:20:30:40:50:60     *        wlan0
192.168.1.20     0x1         0x2         AA:BB:CC:DD:EE:01     *        wlan0
192.168.1.21     0x1         0x0         00:00:00:00:00:00     *        wlan0
192.168.1.22     0x1         0x2         00:00:00:00:00:00     *        wlan0
`

func TestParseProcARP(t *testing.T) {
	tests := []struct {
		ip     string
		want   string
		wantOK bool
	}{
		{"192.168.1.20", "aa:bb:cc:dd:ee:01", true},
		{"192.168.1.1", "10:20:30:40:50:60", true},
		{"192.168.1.21", "", false},
		{"192.168.1.22", "", false},
		{"192.168.1.2", "", false},
		{"IP", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			got, ok := parseProcARP([]byte(procARP), tt.ip)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArpOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		ip     string
		want   string
	}{
		{
			name: "linux net-tools",
			output: "Address                  HWtype  HWaddress           Flags Mask            Iface\n" +
				"192.168.1.20             ether   aa:bb:cc:dd:ee:01   C                     wlan0\n",
			ip:   "192.168.1.20",
			want: "aa:bb:cc:dd:ee:01",
		},
		{
			name:   "bsd short octets",
			output: "? (192.168.1.20) at a:bb:c:dd:e:1 on en0 ifscope [ethernet]\n",
			ip:     "192.168.1.20",
			want:   "0a:bb:0c:dd:0e:01",
		},
		{
			name:   "windows dashes",
			output: "  192.168.1.20          aa-bb-cc-dd-ee-01     dynamic\n",
			ip:     "192.168.1.20",
			want:   "aa:bb:cc:dd:ee:01",
		},
		{
			name:   "incomplete",
			output: "192.168.1.20                     (incomplete)                              wlan0\n",
			ip:     "192.168.1.20",
		},
		{
			name:   "prefix of another address",
			output: "192.168.1.200            ether   aa:bb:cc:dd:ee:02   C                     wlan0\n",
			ip:     "192.168.1.20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseArpOutput([]byte(tt.output), tt.ip)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNeighborCacheFallsBackToCommand(t *testing.T) {
	cache := NewNeighborCache("/nonexistent/arp", "arp")
	cache.readFile = func(string) ([]byte, error) { return nil, os.ErrNotExist }

	var gotArgs []string
	cache.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte("192.168.1.20 ether aa:bb:cc:dd:ee:01 C wlan0\n"), nil
	}

	mac, err := cache.Lookup(context.Background(), net.ParseIP("192.168.1.20"))
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", mac)
	assert.Equal(t, []string{"arp", "-n", "192.168.1.20"}, gotArgs)
}

func TestNeighborCacheTableMissUsesNoCommand(t *testing.T) {
	cache := NewNeighborCache("/proc/net/arp", "arp")
	cache.readFile = func(string) ([]byte, error) { return []byte(procARP), nil }
	cache.run = func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("arp command should not run when the table is readable")
		return nil, nil
	}

	_, err := cache.Lookup(context.Background(), net.ParseIP("192.168.1.99"))
	assert.ErrorIs(t, err, errNoNeighborEntry)
}

func TestNeighborCacheCommandFailure(t *testing.T) {
	cache := NewNeighborCache("", "arp")
	cache.run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exec: \"arp\": executable file not found in $PATH")
	}

	_, err := cache.Lookup(context.Background(), net.ParseIP("192.168.1.20"))
	assert.ErrorContains(t, err, "executable file not found")
}
