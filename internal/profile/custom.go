// internal/profile/custom.go
// Allow-list validation for caller-supplied nmap arguments

package profile

import (
	"regexp"
	"strings"

	"github.com/aspnmy/scanapi/internal/models"
)

const (
	maxCustomTokens = 32
	maxCustomBytes  = 512
)

// shellMeta never appears in a legitimate nmap argument
const shellMeta = ";|&`$<>()\\'\"\n\r{}"

var (
	valuePattern  = regexp.MustCompile(`^[A-Za-z0-9_.,:/*+\-]+$`)
	// port lists never contain dots or slashes, so an address cannot pass
	portPattern = regexp.MustCompile(`^[A-Za-z0-9_,:*\-]+$`)
	// script selectors are names or categories, never file paths
	scriptPattern = regexp.MustCompile(`^[A-Za-z0-9_,*\-]+$`)
)

// flagKind describes how a flag consumes its value
type flagKind int

const (
	// bare flags take no value
	bare flagKind = iota
	// valued flags take the next token, or "=value" for long options
	valued
	// attached flags carry their value in the same token (-T4, -p22)
	attached
	// optional flags take an inline value or none (-PS, -PS22,443). nmap
	// never reads the next token for them, so it would become a target.
	optional
)

// allowed lists the flags a caller may pass. Output, input-file, data
// directory and resume options are deliberately absent.
var allowed = map[string]flagKind{
	// scan techniques
	"-sS": bare, "-sT": bare, "-sU": bare, "-sA": bare, "-sW": bare, "-sM": bare,
	"-sN": bare, "-sF": bare, "-sX": bare, "-sY": bare, "-sZ": bare, "-sO": bare,
	"-sn": bare, "-sL": bare,
	// host discovery
	"-Pn": bare, "-PE": bare, "-PP": bare, "-PM": bare, "-n": bare, "-R": bare,
	"-PS": optional, "-PA": optional, "-PU": optional, "-PY": optional,
	"--traceroute": bare,
	// ports
	"-p": attached, "-F": bare, "-r": bare,
	"--top-ports": valued, "--port-ratio": valued, "--exclude-ports": valued,
	// service / version
	"-sV": bare, "-sC": bare, "-A": bare, "-O": bare,
	"--version-intensity": valued, "--version-light": bare, "--version-all": bare,
	"--osscan-limit": bare, "--osscan-guess": bare, "--fuzzy": bare,
	"--script": valued,
	// timing
	"-T": attached,
	"--min-rate": valued, "--max-rate": valued, "--max-retries": valued,
	"--host-timeout": valued, "--scan-delay": valued, "--max-scan-delay": valued,
	"--min-parallelism": valued, "--max-parallelism": valued,
	"--min-hostgroup": valued, "--max-hostgroup": valued,
	"--min-rtt-timeout": valued, "--max-rtt-timeout": valued, "--initial-rtt-timeout": valued,
	// misc
	"-6": bare, "-v": bare, "-vv": bare, "-d": bare, "--reason": bare, "--open": bare,
	"--defeat-rst-ratelimit": bare, "--system-dns": bare,
}

// ParseCustom validates raw caller arguments and returns them as discrete
// tokens. Any rejection is an ErrInvalidCustomArguments ScanError.
func ParseCustom(raw string) ([]string, error) {
	if len(raw) > maxCustomBytes {
		return nil, invalid("arguments exceed %d bytes", maxCustomBytes)
	}
	if i := strings.IndexAny(raw, shellMeta); i >= 0 {
		return nil, invalid("forbidden character %q", raw[i])
	}
	if strings.Contains(raw, "..") {
		return nil, invalid("path traversal sequence")
	}

	tokens := strings.Fields(raw)
	if len(tokens) > maxCustomTokens {
		return nil, invalid("more than %d arguments", maxCustomTokens)
	}

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !strings.HasPrefix(tok, "-") {
			return nil, invalid("unexpected argument %q", tok)
		}

		name, value, hasValue := splitFlag(tok)
		kind, ok := allowed[name]
		if !ok {
			return nil, invalid("flag %q is not allowed", name)
		}

		switch kind {
		case bare:
			if hasValue {
				return nil, invalid("flag %q takes no value", name)
			}
		case attached:
			if !hasValue {
				// -p also accepts the port list as the next token
				if name == "-T" || i+1 >= len(tokens) {
					return nil, invalid("flag %q requires a value", name)
				}
				i++
				value = tokens[i]
				out = append(out, tok)
				tok = value
			}
			if !valuePattern.MatchString(value) || (name == "-p" && !portPattern.MatchString(value)) {
				return nil, invalid("bad value for %q", name)
			}
		case optional:
			if hasValue && !portPattern.MatchString(value) {
				return nil, invalid("bad value for %q", name)
			}
		case valued:
			if !hasValue {
				if i+1 >= len(tokens) {
					return nil, invalid("flag %q requires a value", name)
				}
				i++
				value = tokens[i]
				out = append(out, tok)
				tok = value
			}
			if strings.HasPrefix(value, "-") || !valuePattern.MatchString(value) {
				return nil, invalid("bad value for %q", name)
			}
			if name == "--script" && !scriptPattern.MatchString(value) {
				return nil, invalid("script selector %q must not be a path", value)
			}
		}
		out = append(out, tok)
	}

	return out, nil
}

// splitFlag separates a token into flag name and inline value
func splitFlag(tok string) (name, value string, hasValue bool) {
	if strings.HasPrefix(tok, "--") {
		if eq := strings.IndexByte(tok, '='); eq > 0 {
			return tok[:eq], tok[eq+1:], true
		}
		return tok, "", false
	}

	if _, ok := allowed[tok]; ok {
		return tok, "", false
	}

	// attached short flags: -T4, -p22,80, -PS443
	for _, prefix := range []string{"-PS", "-PA", "-PU", "-PY", "-p", "-T"} {
		if strings.HasPrefix(tok, prefix) && len(tok) > len(prefix) {
			return prefix, tok[len(prefix):], true
		}
	}
	return tok, "", false
}

func invalid(format string, args ...interface{}) error {
	return models.NewError(models.ErrInvalidCustomArguments, format, args...)
}
