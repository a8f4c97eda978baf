// Package feature implements lexical URL feature extraction.
//
// The extractor never looks anything up over the network. Every signal is
// derived from the URL text, so the same string always yields the same
// vector at training time and at serving time.
package feature

import (
	"errors"
	"net/netip"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ParsedURL is the component view of a URL. Absent parts are empty strings.
type ParsedURL struct {
	Scheme   string
	Netloc   string
	Path     string
	Params   string
	Query    string
	Fragment string
}

var (
	ErrInvalidIPv6       = errors.New("invalid IPv6 URL")
	ErrInvalidIPvFuture  = errors.New("IPvFuture address is invalid")
	ErrBracketedIPv4     = errors.New("an IPv4 address cannot be in brackets")
	ErrInvalidNetlocNFKC = errors.New("netloc contains invalid characters under NFKC normalization")
)

var (
	bracketedRe = regexp.MustCompile(`\[.*?\]`)
	ipvFutureRe = regexp.MustCompile(`\Av[a-fA-F0-9]+\..+\z`)
)

// schemes whose last path segment may carry ";params"
var paramSchemes = map[string]struct{}{
	"": {}, "ftp": {}, "hdl": {}, "prospero": {}, "http": {}, "imap": {},
	"https": {}, "shttp": {}, "rtsp": {}, "rtsps": {}, "rtspu": {}, "sip": {},
	"sips": {}, "mms": {}, "sftp": {}, "tel": {},
}

// SafeParse parses raw and never fails.
//
// A strict parse is tried first. If it rejects the input, bracketed
// segments are removed and the parse is retried. If that also fails, the
// cleaned string is returned as an opaque path.
func SafeParse(raw string) ParsedURL {
	if p, err := Parse(raw); err == nil {
		return p
	}

	cleaned := bracketedRe.ReplaceAllString(raw, "")
	if p, err := Parse(cleaned); err == nil {
		return p
	}

	return ParsedURL{Path: cleaned}
}

// Parse splits raw into components using the same rules the training
// pipeline used. It returns an error only for malformed authority sections.
func Parse(raw string) (ParsedURL, error) {
	var p ParsedURL

	rest := strings.TrimLeftFunc(raw, func(r rune) bool { return r <= ' ' })
	rest = strings.NewReplacer("\t", "", "\r", "", "\n", "").Replace(rest)

	if i := strings.IndexByte(rest, ':'); i > 0 && isASCIILetter(rest[0]) && isSchemePrefix(rest[:i]) {
		p.Scheme = strings.ToLower(rest[:i])
		rest = rest[i+1:]
	}

	if strings.HasPrefix(rest, "//") {
		p.Netloc, rest = splitNetloc(rest[2:])
		if err := checkBrackets(p.Netloc); err != nil {
			return ParsedURL{}, err
		}
	}

	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest, p.Fragment = rest[:i], rest[i+1:]
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, p.Query = rest[:i], rest[i+1:]
	}

	if err := checkNetlocNFKC(p.Netloc); err != nil {
		return ParsedURL{}, err
	}

	if _, ok := paramSchemes[p.Scheme]; ok && strings.Contains(rest, ";") {
		rest, p.Params = splitParams(rest)
	}
	p.Path = rest

	return p, nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSchemePrefix(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isASCIILetter(c), c >= '0' && c <= '9', c == '+', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}

// splitNetloc cuts s at the first '/', '?' or '#'.
func splitNetloc(s string) (netloc, rest string) {
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func checkBrackets(netloc string) error {
	hasOpen := strings.Contains(netloc, "[")
	hasClose := strings.Contains(netloc, "]")
	if hasOpen != hasClose {
		return ErrInvalidIPv6
	}
	if !hasOpen {
		return nil
	}

	// only the first bracketed segment is validated, wherever it sits
	_, after, _ := strings.Cut(netloc, "[")
	host, _, _ := strings.Cut(after, "]")

	if strings.HasPrefix(host, "v") {
		if !ipvFutureRe.MatchString(host) {
			return ErrInvalidIPvFuture
		}
		return nil
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return ErrInvalidIPv6
	}
	if addr.Is4() {
		return ErrBracketedIPv4
	}
	return nil
}

// checkNetlocNFKC rejects non-ASCII hosts that normalize into URL
// delimiters, e.g. a fullwidth solidus turning into '/'.
func checkNetlocNFKC(netloc string) error {
	if netloc == "" || isASCII(netloc) {
		return nil
	}

	n := strings.NewReplacer("@", "", ":", "", "#", "", "?", "").Replace(netloc)
	normalized := norm.NFKC.String(n)
	if n == normalized {
		return nil
	}
	if strings.ContainsAny(normalized, "/?#@:") {
		return ErrInvalidNetlocNFKC
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// splitParams separates ";params" from the last path segment.
func splitParams(path string) (string, string) {
	var i int
	if slash := strings.LastIndexByte(path, '/'); slash >= 0 {
		j := strings.IndexByte(path[slash:], ';')
		if j < 0 {
			return path, ""
		}
		i = slash + j
	} else {
		i = strings.IndexByte(path, ';')
	}
	return path[:i], path[i+1:]
}
