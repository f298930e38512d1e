// internal/target/target.go
// Scan target classification and policy checks

package target

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"unicode"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/aspnmy/scanapi/pkg/cidr"
	"github.com/aspnmy/scanapi/pkg/logger"
)

const maxHostnameLen = 253

// hostnamePattern is an RFC 1123 host name with an optional trailing dot
var hostnamePattern = regexp.MustCompile(
	`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?)*\.?$`)

// Kind classifies a target string
type Kind string

const (
	KindAddress  Kind = "address"
	KindPrefix   Kind = "prefix"
	KindHostname Kind = "hostname"
)

// Target is a validated scan target. ScanTokens gives the nmap arguments.
type Target struct {
	Raw    string
	Kind   Kind
	Prefix netip.Prefix // zero for hostnames
	Hosts  uint64
	Addrs  []netip.Addr // resolved addresses, hostnames only
}

// Policy controls which targets are admitted
type Policy struct {
	// MaxHosts is the largest prefix accepted; 0 disables the ceiling
	MaxHosts uint64
	// AllowPublic admits addresses outside private ranges
	AllowPublic bool
	// ResolveHostnames enables the DNS pre-flight for hostname targets
	ResolveHostnames bool
}

// Resolver looks up the addresses of a host name
type Resolver interface {
	LookupAddrs(ctx context.Context, host string) ([]netip.Addr, error)
}

// Validator checks targets against a policy
type Validator struct {
	policy   Policy
	resolver Resolver
}

// NewValidator creates a validator. resolver may be nil when
// policy.ResolveHostnames is false.
func NewValidator(policy Policy, resolver Resolver) *Validator {
	return &Validator{policy: policy, resolver: resolver}
}

// Validate classifies raw and applies the policy. Every rejection is an
// ErrInvalidTarget ScanError.
func (v *Validator) Validate(ctx context.Context, raw string) (*Target, error) {
	if raw == "" {
		return nil, invalid("target is required")
	}
	if strings.HasPrefix(raw, "-") {
		return nil, invalid("target %q must not start with '-'", raw)
	}
	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return nil, invalid("target must be a single host, address or CIDR")
	}

	if looksNumeric(raw) {
		return v.validatePrefix(raw)
	}
	return v.validateHostname(ctx, raw)
}

func (v *Validator) validatePrefix(raw string) (*Target, error) {
	prefix, err := cidr.ParsePrefix(raw)
	if err != nil {
		return nil, invalid("%v", err)
	}

	t := &Target{Raw: raw, Kind: KindPrefix, Prefix: prefix}
	if cidr.IsSingleHost(prefix) {
		t.Kind = KindAddress
	}

	info, err := cidr.CheckSize(prefix, v.policy.MaxHosts)
	if err != nil {
		return nil, invalid("%v", err)
	}
	t.Hosts = info.Hosts
	if info.Warning != "" {
		logger.Warn(info.Warning, logger.String("target", raw), logger.Uint64("hosts", info.Hosts))
	}

	if !v.policy.AllowPublic && !cidr.PrefixIsPrivate(prefix) {
		return nil, invalid("target %s is outside private address ranges", raw)
	}
	return t, nil
}

func (v *Validator) validateHostname(ctx context.Context, raw string) (*Target, error) {
	if len(raw) > maxHostnameLen || !hostnamePattern.MatchString(raw) {
		return nil, invalid("%q is not a valid address, CIDR or hostname", raw)
	}
	// nmap expands octet ranges such as 10.0.0.1-20, so a name whose
	// last label does not start with a letter is never a single host
	if !hasAlphaTLD(raw) {
		return nil, invalid("%q is not a valid address, CIDR or hostname", raw)
	}

	t := &Target{Raw: raw, Kind: KindHostname, Hosts: 1}

	if !v.policy.ResolveHostnames || v.resolver == nil {
		if !v.policy.AllowPublic {
			return nil, invalid("hostname %q cannot be checked against the private-range policy without resolution", raw)
		}
		return t, nil
	}

	addrs, err := v.resolver.LookupAddrs(ctx, raw)
	if err != nil {
		return nil, models.NewError(models.ErrInvalidTarget, "cannot resolve %q", raw).WithCause(err)
	}
	if len(addrs) == 0 {
		return nil, invalid("%q has no A or AAAA records", raw)
	}

	if !v.policy.AllowPublic {
		for _, addr := range addrs {
			if !cidr.IsPrivate(addr) {
				return nil, invalid("%q resolves to public address %s", raw, addr)
			}
		}
	}

	t.Addrs = addrs
	logger.Debug("Target resolved",
		logger.String("target", raw),
		logger.Int("addresses", len(addrs)),
	)
	return t, nil
}

// looksNumeric reports whether s can only be an address or prefix
func looksNumeric(s string) bool {
	if strings.Contains(s, ":") || strings.Contains(s, "/") {
		return true
	}
	for _, r := range s {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// hasAlphaTLD reports whether the last label of a host name starts with a
// letter. Numeric forms like 0x7f000001 are parsed as addresses by the
// resolver and skip the private-range check otherwise.
func hasAlphaTLD(host string) bool {
	host = strings.TrimSuffix(host, ".")
	label := host[strings.LastIndexByte(host, '.')+1:]
	return label != "" && unicode.IsLetter(rune(label[0]))
}

func invalid(format string, args ...interface{}) error {
	return models.NewError(models.ErrInvalidTarget, format, args...)
}

// ScanTokens returns the target arguments handed to nmap. A resolved
// hostname is pinned to the addresses that passed the policy check so a
// second lookup by nmap cannot land somewhere else.
func (t *Target) ScanTokens() []string {
	if t.Kind != KindHostname || len(t.Addrs) == 0 {
		return []string{t.Raw}
	}
	out := make([]string, len(t.Addrs))
	for i, addr := range t.Addrs {
		out[i] = addr.String()
	}
	return out
}

// String implements fmt.Stringer
func (t *Target) String() string {
	if t.Kind == KindHostname {
		return t.Raw
	}
	return fmt.Sprintf("%s (%d hosts)", t.Prefix, t.Hosts)
}
