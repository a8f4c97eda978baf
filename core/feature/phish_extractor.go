package feature

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SuspiciousWords are matched as substrings of the lowercased URL.
var SuspiciousWords = []string{
	"secure", "login", "signin", "verify", "update",
	"account", "bank", "paypal", "password", "confirm",
}

// SuspiciousTLDs are matched against the end of the host.
var SuspiciousTLDs = []string{
	".xyz", ".top", ".club", ".info", ".live", ".fit", ".buzz",
}

const specialChars = `~!#$%^&*+={}[]|\;:'",<>?`

var ipHostRe = regexp.MustCompile(`^\p{Nd}{1,3}(\.\p{Nd}{1,3}){3}$`)

// Extract computes the lexical features of url. It is total and pure: any
// input, including the empty string, yields a complete vector.
func Extract(url string) Vector {
	p := SafeParse(url)
	host := p.Netloc
	path := p.Path
	query := p.Query

	pathQ := path
	if query != "" {
		pathQ += "?" + query
	}

	var subdomains []string
	if strings.Count(host, ".") >= 2 {
		labels := strings.Split(host, ".")
		subdomains = labels[:len(labels)-2]
	}

	firstDir := ""
	if strings.Contains(dropFirstRune(path), "/") {
		firstDir = strings.Split(path, "/")[1]
	}

	tldLen := 0
	if i := strings.LastIndexByte(host, '.'); i >= 0 {
		tldLen = utf8.RuneCountInString(host[i+1:])
	}

	var urlLen, digits, letters, special int
	for _, r := range url {
		urlLen++
		if unicode.IsDigit(r) {
			digits++
		}
		if unicode.IsLetter(r) {
			letters++
		}
		if strings.ContainsRune(specialChars, r) {
			special++
		}
	}

	queryParams := strings.Count(query, "&")
	if query != "" {
		queryParams++
	}

	prefixSuffix := false
	if host != "" {
		first, _, _ := strings.Cut(host, ".")
		prefixSuffix = strings.Contains(first, "-")
	}

	var v Vector
	v.values[URLLen] = float64(urlLen)
	v.values[HostLen] = float64(utf8.RuneCountInString(host))
	v.values[PathLen] = float64(utf8.RuneCountInString(pathQ))
	v.values[TLDLen] = float64(tldLen)
	v.values[FirstDirLen] = float64(utf8.RuneCountInString(firstDir))
	v.values[CountDots] = float64(strings.Count(url, "."))
	v.values[CountHyphens] = float64(strings.Count(url, "-"))
	v.values[CountUnderscores] = float64(strings.Count(url, "_"))
	v.values[CountDigits] = float64(digits)
	v.values[CountSubdomains] = float64(len(subdomains))
	v.values[CountQueryParams] = float64(queryParams)
	v.values[CountSpecialChars] = float64(special)
	if urlLen > 0 {
		v.values[DigitsRatio] = float64(digits) / float64(urlLen)
		v.values[LettersRatio] = float64(letters) / float64(urlLen)
	}
	v.values[HasHTTPSScheme] = flag(p.Scheme == "https")
	v.values[HasHTTPSToken] = flag(strings.Contains(lower(host), "https"))
	v.values[HasIPHost] = flag(ipHostRe.MatchString(host))
	v.values[HasPrefixSuffix] = flag(prefixSuffix)
	v.values[HasDoubleSlashInPath] = flag(strings.Contains(dropFirstRune(path), "//"))
	v.values[HasSuspiciousTLD] = flag(hasAnySuffix(host, SuspiciousTLDs))
	v.values[ContainsSuspiciousWord] = flag(containsAny(lower(url), SuspiciousWords))
	v.values[Entropy] = ShannonEntropy(url)

	return v
}

// ShannonEntropy returns the base-2 entropy of the code point distribution
// of s, or 0 for the empty string.
func ShannonEntropy(s string) float64 {
	counts := make(map[rune]int)
	total := 0
	for _, r := range s {
		counts[r]++
		total++
	}
	if total == 0 {
		return 0
	}

	// fixed summation order keeps the result bit-identical across calls
	runes := make([]rune, 0, len(counts))
	for r := range counts {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })

	var h float64
	n := float64(total)
	for _, r := range runes {
		p := float64(counts[r]) / n
		h -= p * math.Log2(p)
	}
	return h
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// lower applies full Unicode lowercasing. It differs from strings.ToLower
// only for U+0130, which lowercases to "i" plus U+0307 rather than a bare "i".
func lower(s string) string {
	if !strings.ContainsRune(s, '\u0130') {
		return strings.ToLower(s)
	}
	var b strings.Builder
	b.Grow(len(s) + 1)
	for _, r := range s {
		if r == '\u0130' {
			b.WriteString("i\u0307")
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func dropFirstRune(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeRuneInString(s)
	return s[size:]
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
