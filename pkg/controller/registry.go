package controller

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/net/publicsuffix"
)

// ErrPatternTooBroad is returned when a suffix pattern would match every
// site under a public suffix such as com or co.uk.
var ErrPatternTooBroad = errors.New("host pattern covers a public suffix")

type hostPattern struct {
	raw  string
	glob glob.Glob
	kind Kind
}

// Registry maps hosts to controller kinds. Exact hosts win over patterns;
// patterns are tried in registration order.
type Registry struct {
	exact    map[string]Kind
	patterns []hostPattern
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{exact: make(map[string]Kind)}
}

// DefaultRegistry returns the registry of supported sites.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, host := range []string{"www.youtube.com", "youtube.com", "m.youtube.com", "youtu.be", "*.youtube.com"} {
		if err := r.Register(host, KindMedia); err != nil {
			panic(err)
		}
	}
	return r
}

// Register maps host to kind. A host containing '*' is a glob pattern
// matched against the whole hostname, e.g. "*.youtube.com".
func (r *Registry) Register(host string, kind Kind) error {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return fmt.Errorf("empty host")
	}
	if kind == KindNone {
		return fmt.Errorf("host %s: cannot register kind %s", host, kind)
	}

	if !strings.Contains(host, "*") {
		r.exact[host] = kind
		return nil
	}

	base := strings.TrimLeft(host, "*.")
	if base == "" {
		return fmt.Errorf("host pattern %s: %w", host, ErrPatternTooBroad)
	}
	if suffix, _ := publicsuffix.PublicSuffix(base); suffix == base {
		return fmt.Errorf("host pattern %s: %w", host, ErrPatternTooBroad)
	}

	g, err := glob.Compile(host)
	if err != nil {
		return fmt.Errorf("host pattern %s: %w", host, err)
	}
	r.patterns = append(r.patterns, hostPattern{raw: host, glob: g, kind: kind})
	return nil
}

// LookupHost returns the kind registered for host. Case and any port are ignored.
func (r *Registry) LookupHost(host string) (Kind, bool) {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok && !strings.Contains(host, "]") {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return KindNone, false
	}

	if kind, ok := r.exact[host]; ok {
		return kind, true
	}
	for _, p := range r.patterns {
		if p.glob.Match(host) {
			return p.kind, true
		}
	}
	return KindNone, false
}

// Lookup returns the kind serving rawURL. URLs that do not parse or have
// no host are served by no controller.
func (r *Registry) Lookup(rawURL string) (Kind, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return KindNone, false
	}
	return r.LookupHost(u.Hostname())
}
