// internal/profile/profile.go
// Scan profile table: maps a scan type to nmap arguments

package profile

import (
	"sort"
	"strings"

	"github.com/aspnmy/scanapi/internal/models"
)

// Profile is a named, immutable argument list
type Profile struct {
	ID          models.ProfileID `json:"id"`
	Description string           `json:"description"`
	Args        []string         `json:"args"`
}

// customDefault is used when the custom profile is requested without arguments
var customDefault = []string{"-A", "-T4", "-v"}

var table = map[models.ProfileID]Profile{
	models.ProfileQuick: {
		Description: "Fast service probe of the most common ports",
		Args:        []string{"-sV", "-F", "-T4", "--version-intensity", "5"},
	},
	models.ProfileFull: {
		Description: "All 65535 ports with OS detection",
		Args:        []string{"-sS", "-sV", "-O", "-p-", "-T4", "--version-intensity", "7"},
	},
	models.ProfileStealth: {
		Description: "Low-rate SYN probe without host discovery",
		Args:        []string{"-sS", "-Pn", "-T2", "--version-intensity", "0"},
	},
	models.ProfileVuln: {
		Description: "Vulnerability detection scripts",
		Args:        []string{"-sV", "-sC", "--script", "vuln", "-T4"},
	},
	models.ProfileService: {
		Description: "Aggressive service and version detection",
		Args:        []string{"-sV", "-A", "--version-all"},
	},
	models.ProfileOS: {
		Description: "Operating system fingerprinting",
		Args:        []string{"-O", "-sV", "--osscan-guess", "--fuzzy"},
	},
	models.ProfileUDP: {
		Description: "UDP service probe",
		Args:        []string{"-sU", "-sV", "--version-intensity", "5"},
	},
	models.ProfileScript: {
		Description: "Default and safe script categories",
		Args:        []string{"-sC", "-sV", "--script", "default,safe"},
	},
	models.ProfileCustom: {
		Description: "Caller-supplied arguments from the allow-list",
		Args:        customDefault,
	},
}

// Resolve returns the argument list for id. For the custom profile the
// caller's arguments are validated; an empty string selects the default
// custom arguments. The returned slice is always a fresh copy.
func Resolve(id models.ProfileID, customArgs string) ([]string, error) {
	p, ok := table[id]
	if !ok {
		return nil, models.NewError(models.ErrInvalidProfile, "unknown scan type %q", string(id))
	}

	if id == models.ProfileCustom && strings.TrimSpace(customArgs) != "" {
		return ParseCustom(customArgs)
	}

	out := make([]string, len(p.Args))
	copy(out, p.Args)
	return out, nil
}

// Lookup returns a copy of the profile definition
func Lookup(id models.ProfileID) (Profile, bool) {
	p, ok := table[id]
	if !ok {
		return Profile{}, false
	}
	p.ID = id
	p.Args = append([]string(nil), p.Args...)
	return p, true
}

// Profiles lists every profile sorted by id
func Profiles() []Profile {
	out := make([]Profile, 0, len(table))
	for id := range table {
		p, _ := Lookup(id)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
