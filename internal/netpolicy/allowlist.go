package netpolicy

import "strings"

// Destination is one compiled-in allowlist entry. A sandbox container's
// only permitted egress is to hosts that match one of these.
type Destination struct {
	// Host is the exact hostname to allow, e.g. "api.anthropic.com".
	Host string
	// AllowSubdomains additionally permits any "*.Host" suffix match,
	// e.g. Host "github.com" with AllowSubdomains true also allows
	// "api.github.com", "raw.githubusercontent.com" does not match
	// (different registrable domain) — subdomain matching is by exact
	// suffix, not registrable-domain inference.
	AllowSubdomains bool
}

// Allowlist is the full set of permitted egress destinations, compiled
// into the binary rather than read from a runtime-editable file, so a
// compromised sandbox process cannot widen its own network access.
type Allowlist []Destination

// Allows reports whether host (as seen in a CONNECT request or Host
// header, with any port stripped by the caller) is permitted.
func (a Allowlist) Allows(host string) bool {
	host = strings.ToLower(host)
	for _, d := range a {
		if host == strings.ToLower(d.Host) {
			return true
		}
		if d.AllowSubdomains && strings.HasSuffix(host, "."+strings.ToLower(d.Host)) {
			return true
		}
	}
	return false
}

// Default is the baseline allowlist: package registries and version
// control hosts a development sandbox needs to build and fetch
// dependencies.
var Default = Allowlist{
	{Host: "github.com", AllowSubdomains: true},
	{Host: "githubusercontent.com", AllowSubdomains: true},
	{Host: "pypi.org", AllowSubdomains: true},
	{Host: "npmjs.org", AllowSubdomains: true},
	{Host: "registry.npmjs.org"},
	{Host: "proxy.golang.org"},
	{Host: "sum.golang.org"},
	{Host: "crates.io", AllowSubdomains: true},
	{Host: "anthropic.com", AllowSubdomains: true},
}
