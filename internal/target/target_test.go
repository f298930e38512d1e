// internal/target/target_test.go

package target

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/pkg/cidr"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	addrs map[string][]netip.Addr
	calls int
}

func (s *stubResolver) LookupAddrs(_ context.Context, host string) ([]netip.Addr, error) {
	s.calls++
	addrs, ok := s.addrs[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	return addrs, nil
}

func TestValidate_Classification(t *testing.T) {
	v := NewValidator(Policy{MaxHosts: cidr.DefaultMaxHosts, AllowPublic: true}, nil)

	tests := []struct {
		raw   string
		kind  Kind
		hosts uint64
	}{
		{"192.168.1.1", KindAddress, 1},
		{"192.168.1.0/24", KindPrefix, 256},
		{"10.0.0.0/16", KindPrefix, 65536},
		{"2001:db8::1", KindAddress, 1},
		{"scanme.nmap.org", KindHostname, 1},
		{"router", KindHostname, 1},
		{"host-01.lan.", KindHostname, 1},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := v.Validate(context.Background(), tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.hosts, got.Hosts)
			assert.Equal(t, tt.raw, got.Raw)
		})
	}
}

func TestValidate_Rejections(t *testing.T) {
	v := NewValidator(Policy{MaxHosts: cidr.DefaultMaxHosts, AllowPublic: true}, nil)

	inputs := []string{
		"",
		"-oN/tmp/x",
		"--script=evil",
		"192.168.1.1 10.0.0.1",
		"192.168.1.1\n",
		"10.0.0.0/8",
		"999.1.1.1",
		"10.0.0.0/33",
		"host_name.local",
		"-host",
		"a..b",
		"bad;host",
		"0-255.0-255.0-255.0-255",
		"10.0.0.1-20",
		"192.168.0-255.1",
		"1-65535",
		"0x7f000001",
		"10.0.0.1.",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := v.Validate(context.Background(), in)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidTarget)
			assert.Equal(t, models.KindValidation, models.KindOf(err))
		})
	}
}

func TestValidate_PrivateOnly(t *testing.T) {
	resolver := &stubResolver{addrs: map[string][]netip.Addr{
		"nas.lan":     {netip.MustParseAddr("192.168.1.20")},
		"example.com": {netip.MustParseAddr("93.184.216.34")},
	}}
	v := NewValidator(Policy{MaxHosts: cidr.DefaultMaxHosts, ResolveHostnames: true}, resolver)

	_, err := v.Validate(context.Background(), "192.168.1.0/24")
	assert.NoError(t, err)

	_, err = v.Validate(context.Background(), "8.8.8.8")
	assert.ErrorIs(t, err, models.ErrInvalidTarget)

	got, err := v.Validate(context.Background(), "nas.lan")
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.20")}, got.Addrs)

	_, err = v.Validate(context.Background(), "example.com")
	assert.ErrorIs(t, err, models.ErrInvalidTarget)

	_, err = v.Validate(context.Background(), "missing.lan")
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
}

func TestTarget_ScanTokens(t *testing.T) {
	resolver := &stubResolver{addrs: map[string][]netip.Addr{
		"nas.lan": {netip.MustParseAddr("192.168.1.20"), netip.MustParseAddr("fd00::20")},
	}}
	v := NewValidator(Policy{MaxHosts: cidr.DefaultMaxHosts, ResolveHostnames: true}, resolver)

	got, err := v.Validate(context.Background(), "nas.lan")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.20", "fd00::20"}, got.ScanTokens())

	got, err = v.Validate(context.Background(), "192.168.1.0/24")
	require.NoError(t, err)
	assert.Equal(t, []string{"192.168.1.0/24"}, got.ScanTokens())

	open := NewValidator(Policy{AllowPublic: true}, nil)
	got, err = open.Validate(context.Background(), "scanme.nmap.org")
	require.NoError(t, err)
	assert.Equal(t, []string{"scanme.nmap.org"}, got.ScanTokens())
}

func TestValidate_PrivateOnlyWithoutResolution(t *testing.T) {
	v := NewValidator(Policy{MaxHosts: cidr.DefaultMaxHosts}, nil)

	_, err := v.Validate(context.Background(), "nas.lan")
	assert.ErrorIs(t, err, models.ErrInvalidTarget)
}

func TestValidate_ResolverSkippedForAddresses(t *testing.T) {
	resolver := &stubResolver{}
	v := NewValidator(Policy{AllowPublic: true, ResolveHostnames: true}, resolver)

	_, err := v.Validate(context.Background(), "10.1.2.3")
	require.NoError(t, err)
	assert.Zero(t, resolver.calls)
}

// startDNS runs a local nameserver answering for scanme.test
func startDNS(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		switch {
		case q.Name == "scanme.test." && q.Qtype == dns.TypeA:
			rr, _ := dns.NewRR("scanme.test. 60 IN A 192.168.1.10")
			m.Answer = append(m.Answer, rr)
		case q.Name == "scanme.test.":
		default:
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestDNSResolver_LookupAddrs(t *testing.T) {
	addr := startDNS(t)
	r := NewDNSResolver(addr, time.Second)

	addrs, err := r.LookupAddrs(context.Background(), "scanme.test")
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.168.1.10")}, addrs)

	_, err = r.LookupAddrs(context.Background(), "nope.test")
	assert.Error(t, err)
}

func TestDNSResolver_ValidatorIntegration(t *testing.T) {
	addr := startDNS(t)
	v := NewValidator(Policy{MaxHosts: cidr.DefaultMaxHosts, ResolveHostnames: true}, NewDNSResolver(addr, time.Second))

	got, err := v.Validate(context.Background(), "scanme.test")
	require.NoError(t, err)
	assert.Equal(t, KindHostname, got.Kind)
	assert.Len(t, got.Addrs, 1)
}
