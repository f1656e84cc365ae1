// Package hostname collapses wildcard-DNS hosts to their stable base name.
//
// Services deployed behind the proxy are often reachable through wildcard
// DNS providers that embed an IP address in a subdomain label, e.g.
// "svc.10.0.0.5.nip.io" or "svc.10-0-0-5.sslip.io". Routes and certificates
// are registered under the stable base ("10.0.0.5.nip.io"), so lookups first
// normalize the requested name.
package hostname

import "strings"

// suffixRule pairs a wildcard-DNS suffix with the function that strips the
// ephemeral subdomain labels in front of the embedded address.
type suffixRule struct {
	suffix string
	strip  func(host, suffix string) string
}

// rules are tried in order; the first rule whose stripping changes the host
// wins. Suffixes mirror the wildcard providers the control plane registers
// domains under.
var rules = []suffixRule{
	{".nip.io", stripEmbeddedIP},
	{".sslip.io", stripEmbeddedIP},
	{".lvh.me", stripSubdomains},
	{".localtest.me", stripSubdomains},
}

// Normalize maps a server name to its canonical form for route and
// certificate lookups. It is pure and total: a host that matches no rule, or
// that no rule can shorten, is returned unchanged.
func Normalize(host string) string {
	if host == "" {
		return host
	}
	for _, rule := range rules {
		if !strings.HasSuffix(host, rule.suffix) {
			continue
		}
		if stripped := rule.strip(host, rule.suffix); stripped != host {
			return stripped
		}
	}
	return host
}

// stripEmbeddedIP recovers the "<ip>.<suffix>" base from hosts of the form
// "label(s).<ip>.<suffix>". The embedded address is either four trailing
// dot-separated numeric labels or a single dash-separated label
// ("10-0-0-5"). Hosts that are already the bare base are left unchanged.
func stripEmbeddedIP(host, suffix string) string {
	prefix := strings.TrimSuffix(host, suffix)
	labels := strings.Split(prefix, ".")

	// Dashed form: the last label alone encodes the address.
	if last := labels[len(labels)-1]; isDashedIP(last) {
		if len(labels) == 1 {
			return host
		}
		return last + suffix
	}

	// Dotted form: the last four labels encode the address.
	if len(labels) > 4 && isDottedIP(labels[len(labels)-4:]) {
		return strings.Join(labels[len(labels)-4:], ".") + suffix
	}

	return host
}

// stripSubdomains keeps only the suffix domain itself for providers that
// resolve every subdomain to a fixed address (lvh.me, localtest.me).
func stripSubdomains(host, suffix string) string {
	base := suffix[1:]
	if host == base {
		return host
	}
	return base
}

func isDottedIP(labels []string) bool {
	for _, label := range labels {
		if !isNumericOctet(label) {
			return false
		}
	}
	return true
}

func isDashedIP(label string) bool {
	parts := strings.Split(label, "-")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if !isNumericOctet(part) {
			return false
		}
	}
	return true
}

func isNumericOctet(s string) bool {
	if len(s) == 0 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
