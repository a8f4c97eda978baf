package scoring

import (
	"net/netip"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// hostname strips userinfo, port and IPv6 brackets from a netloc.
func hostname(netloc string) string {
	if i := strings.LastIndexByte(netloc, '@'); i >= 0 {
		netloc = netloc[i+1:]
	}
	if strings.HasPrefix(netloc, "[") {
		if end := strings.IndexByte(netloc, ']'); end > 0 {
			return netloc[1:end]
		}
		return netloc
	}
	if i := strings.LastIndexByte(netloc, ':'); i >= 0 {
		netloc = netloc[:i]
	}
	return strings.TrimSuffix(strings.ToLower(netloc), ".")
}

// registrableDomain returns the eTLD+1 and public suffix of the host in
// netloc. Both are empty for IP literals and hosts the list cannot place.
func registrableDomain(netloc string) (registered, suffix string) {
	host := hostname(netloc)
	if host == "" {
		return "", ""
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return "", ""
	}

	suffix, _ = publicsuffix.PublicSuffix(host)
	registered, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", suffix
	}
	return registered, suffix
}
