package feature

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Feature indexes into a Vector. The order is the column order the scaler
// and classifier were fit against and must not change.
type Feature int

const (
	URLLen Feature = iota
	HostLen
	PathLen
	TLDLen
	FirstDirLen
	CountDots
	CountHyphens
	CountUnderscores
	CountDigits
	CountSubdomains
	CountQueryParams
	CountSpecialChars
	DigitsRatio
	LettersRatio
	HasHTTPSScheme
	HasHTTPSToken
	HasIPHost
	HasPrefixSuffix
	HasDoubleSlashInPath
	HasSuspiciousTLD
	ContainsSuspiciousWord
	Entropy

	NumFeatures int = iota
)

// Names lists feature names in column order.
var Names = [NumFeatures]string{
	"url_len",
	"host_len",
	"path_len",
	"tld_len",
	"first_dir_len",
	"count_dots",
	"count_hyphens",
	"count_underscores",
	"count_digits",
	"count_subdomains",
	"count_query_params",
	"count_special_chars",
	"digits_ratio",
	"letters_ratio",
	"has_https_scheme",
	"has_https_token",
	"has_ip_host",
	"has_prefix_suffix",
	"has_double_slash_in_path",
	"has_suspicious_tld",
	"contains_suspicious_word",
	"entropy",
}

func (f Feature) String() string {
	if f < 0 || int(f) >= NumFeatures {
		return "feature(" + strconv.Itoa(int(f)) + ")"
	}
	return Names[f]
}

// Kind groups features by the value range they can take.
type Kind int

const (
	KindCount Kind = iota
	KindRatio
	KindFlag
	KindEntropy
)

// Kind reports the value range of f.
func (f Feature) Kind() Kind {
	switch {
	case f <= CountSpecialChars:
		return KindCount
	case f == DigitsRatio || f == LettersRatio:
		return KindRatio
	case f == Entropy:
		return KindEntropy
	default:
		return KindFlag
	}
}

// Vector is an ordered, immutable set of feature values.
type Vector struct {
	values [NumFeatures]float64
}

// Get returns the value of f.
func (v Vector) Get(f Feature) float64 {
	return v.values[f]
}

// Values returns a fresh copy of the row in column order.
func (v Vector) Values() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v.values[:])
	return out
}

// Map returns the features keyed by name.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, name := range Names {
		m[name] = v.values[i]
	}
	return m
}

// MarshalJSON encodes the vector as an object with keys in column order.
func (v Vector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(name)
		buf.WriteString(`":`)
		buf.WriteString(strconv.FormatFloat(v.values[i], 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FromValues builds a Vector from a row in column order.
func FromValues(row []float64) (Vector, error) {
	var v Vector
	if len(row) != NumFeatures {
		return v, fmt.Errorf("feature row has %d values, want %d", len(row), NumFeatures)
	}
	copy(v.values[:], row)
	return v, nil
}

// UnmarshalJSON decodes the object form written by MarshalJSON. Every
// feature must be present.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Vector
	for i, name := range Names {
		val, ok := m[name]
		if !ok {
			return fmt.Errorf("feature %q missing", name)
		}
		out.values[i] = val
	}
	*v = out
	return nil
}
