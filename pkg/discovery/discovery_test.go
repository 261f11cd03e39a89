package discovery

import (
	"net"
	"strings"
	"testing"

	"github.com/grandcat/zeroconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEntry(t *testing.T) {
	e := zeroconf.NewServiceEntry("arcade", ServiceType, Domain)
	e.HostName = "arcade.local."
	e.Port = 5000
	e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}
	e.Text = []string{"version=1.2.0", "serial_port=/dev/ttyACM0", "flag"}

	st := FromEntry(e)
	assert.Equal(t, "arcade", st.Instance)
	assert.Equal(t, 5000, st.Port)
	assert.Equal(t, []string{"192.168.1.20"}, st.Addrs)
	assert.Equal(t, "1.2.0", st.Version)
	assert.Equal(t, "/dev/ttyACM0", st.Serial)
	assert.Equal(t, "http://192.168.1.20:5000", st.URL())
}

func TestStationURLFallsBackToHost(t *testing.T) {
	st := Station{Host: "arcade.local.", Port: 8080}
	assert.Equal(t, "http://arcade.local:8080", st.URL())

	st = Station{Addrs: []string{"fe80::1"}, Port: 5000}
	assert.Equal(t, "http://[fe80::1]:5000", st.URL())
}

func TestParseText(t *testing.T) {
	txt := ParseText([]string{"a=1", "b=x=y", "c", "=skip"})
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, txt)
}

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "living room", InstanceName("  living room "))

	name := InstanceName("")
	require.NotEmpty(t, name)
	assert.True(t, strings.HasPrefix(name, "gamepi"))
}

func TestAdvertiseRejectsBadPort(t *testing.T) {
	_, err := Advertise(Options{Port: 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidPort)

	_, err = Advertise(Options{Port: 70000}, nil)
	assert.ErrorIs(t, err, ErrInvalidPort)
}

func TestMergeAndCollect(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, mergeAddrs([]string{"a", "b"}, []string{"b", "c"}))

	stations := collect(map[string]Station{
		"zeta":  {Instance: "zeta"},
		"alpha": {Instance: "alpha"},
	})
	require.Len(t, stations, 2)
	assert.Equal(t, "alpha", stations[0].Instance)
	assert.Equal(t, "zeta", stations[1].Instance)
}

func TestShutdownNil(t *testing.T) {
	var a *Advertiser
	assert.NotPanics(t, a.Shutdown)
}
