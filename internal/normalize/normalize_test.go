// internal/normalize/normalize_test.go

package normalize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestNormalize_QuickScan(t *testing.T) {
	res, err := Normalize(readFixture(t, "quick.xml"))
	require.NoError(t, err)

	assert.True(t, res.Complete)
	require.Len(t, res.Hosts, 1)

	host := res.Hosts[0]
	assert.Equal(t, "192.168.1.1", host.Address)
	assert.Equal(t, "router.lan", host.Hostname)
	assert.Equal(t, "up", host.State)
	assert.Nil(t, host.OS)
	assert.Nil(t, host.Scripts)

	require.Len(t, host.Protocols, 1)
	assert.Equal(t, "tcp", host.Protocols[0].Name)
	require.Len(t, host.Protocols[0].Ports, 1)

	port := host.Protocols[0].Ports[0]
	assert.Equal(t, 22, port.Port)
	assert.Equal(t, "open", port.State)
	assert.Equal(t, "syn-ack", port.Reason)
	assert.Equal(t, "ssh", port.Service)
	assert.Equal(t, "OpenSSH", port.Product)
	assert.Equal(t, "8.9p1 Ubuntu 3ubuntu0.6", port.Version)
	assert.Equal(t, "Ubuntu Linux; protocol 2.0", port.ExtraInfo)
	assert.Equal(t, []string{"cpe:/a:openbsd:openssh:8.9p1", "cpe:/o:linux:linux_kernel"}, port.CPE)
}

func TestNormalize_OSAndScripts(t *testing.T) {
	res, err := Normalize(readFixture(t, "os.xml"))
	require.NoError(t, err)
	require.Len(t, res.Hosts, 2)

	host := res.Hosts[0]
	assert.Equal(t, "", host.Hostname)

	// tcp before udp, ports ascending
	require.Len(t, host.Protocols, 2)
	assert.Equal(t, "tcp", host.Protocols[0].Name)
	assert.Equal(t, "udp", host.Protocols[1].Name)
	assert.Equal(t, 80, host.Protocols[0].Ports[0].Port)
	assert.Equal(t, 443, host.Protocols[0].Ports[1].Port)

	https := host.Protocols[0].Ports[1]
	assert.Equal(t, "", https.Product)
	assert.Equal(t, "", https.Version)
	assert.NotNil(t, https.CPE)
	assert.Empty(t, https.CPE)
	assert.Equal(t, 3, https.Conf)
	assert.Equal(t, 10, host.Protocols[1].Ports[0].Conf)
	require.Len(t, https.Scripts, 1)
	assert.Equal(t, "http-title", https.Scripts[0].ID)
	assert.Equal(t, "Router Login", https.Scripts[0].Output)

	require.NotNil(t, host.OS)
	require.Len(t, host.OS.Matches, 2)
	assert.Equal(t, "98", host.OS.Accuracy)
	assert.Equal(t, "Linux 4.15 - 5.8", host.OS.Matches[0].Name)
	assert.Equal(t, 96, host.OS.Matches[0].Accuracy)
	require.NotNil(t, host.OS.Matches[0].Class)
	assert.Equal(t, "general purpose", host.OS.Matches[0].Class.Type)
	assert.Equal(t, "Linux", host.OS.Matches[0].Class.Family)
	assert.Equal(t, "4.X", host.OS.Matches[0].Class.Gen)

	require.Len(t, host.Scripts, 1)
	assert.Equal(t, "smb-os-discovery", host.Scripts[0].ID)

	assert.Equal(t, "Nmap done; 2 IP addresses (1 host up) scanned in 12.30 seconds", res.Summary)
	assert.InDelta(t, 12.30, res.Elapsed, 0.001)

	down := res.Hosts[1]
	assert.Equal(t, "10.0.0.6", down.Address)
	assert.Equal(t, "down", down.State)
	assert.NotNil(t, down.Protocols)
	assert.Empty(t, down.Protocols)
}

func TestNormalize_HostWithoutPorts(t *testing.T) {
	raw := `<?xml version="1.0"?>
<nmaprun><host><status state="up" reason="echo-reply"/><address addr="10.1.1.1" addrtype="ipv4"/></host>
<runstats><finished exit="success" summary="" elapsed="1.00"/></runstats></nmaprun>`

	res, err := Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, res.Hosts, 1)
	assert.Equal(t, []models.ProtocolResult{}, res.Hosts[0].Protocols)
}

func TestNormalize_ErrorExitIsIncomplete(t *testing.T) {
	res, err := Normalize(readFixture(t, "error.xml"))
	require.NoError(t, err)
	assert.False(t, res.Complete)
	require.Len(t, res.Hosts, 1)
}

func TestNormalize_NoiseAroundDocument(t *testing.T) {
	raw := "WARNING: No profinet devices found\n" + string(readFixture(t, "quick.xml")) + "\ntrailing noise\n"

	res, err := Normalize([]byte(raw))
	require.NoError(t, err)
	assert.Len(t, res.Hosts, 1)
}

func TestNormalize_ParseErrors(t *testing.T) {
	quick := string(readFixture(t, "quick.xml"))
	cut := strings.Index(quick, "</ports>")

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"plain text", "Starting Nmap 7.94\nFailed to resolve \"nohost\".\n"},
		{"truncated", quick[:cut]},
		{"no root", `<?xml version="1.0"?><scan></scan>`},
		{"malformed", `<nmaprun><host><status state="up"></host></nmaprun>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize([]byte(tt.raw))
			assert.Nil(t, res)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrParse)
			assert.Equal(t, models.KindParse, models.KindOf(err))
		})
	}
}

func TestCSV(t *testing.T) {
	res, err := Normalize(readFixture(t, "quick.xml"))
	require.NoError(t, err)

	out := CSV(res.Hosts)
	lines := strings.Split(strings.TrimRight(out, "\r\n"), "\r\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "host;hostname;hostname_type;protocol;port;name;state;product;extrainfo;reason;version;conf;cpe", lines[0])
	assert.Equal(t,
		`192.168.1.1;router.lan;PTR;tcp;22;ssh;open;OpenSSH;"Ubuntu Linux; protocol 2.0";syn-ack;8.9p1 Ubuntu 3ubuntu0.6;10;cpe:/a:openbsd:openssh:8.9p1 cpe:/o:linux:linux_kernel`,
		lines[1])
}

func TestCSV_NoHosts(t *testing.T) {
	out := CSV(nil)
	assert.Equal(t, "host;hostname;hostname_type;protocol;port;name;state;product;extrainfo;reason;version;conf;cpe\r\n", out)
}
