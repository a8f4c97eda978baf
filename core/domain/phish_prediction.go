package domain

import (
	"time"

	"phish_server/core/feature"

	"github.com/google/uuid"
)

// Label is the classification outcome.
type Label string

const (
	LabelLegitimate Label = "legitimate"
	LabelPhishing   Label = "phishing"
)

// PositiveClass is the classifier output index for phishing.
const PositiveClass = 1

// LabelForClass maps a classifier output to a label. Anything other than
// the positive class is legitimate.
func LabelForClass(class int) Label {
	if class == PositiveClass {
		return LabelPhishing
	}
	return LabelLegitimate
}

func (l Label) Valid() bool {
	return l == LabelLegitimate || l == LabelPhishing
}

// Prediction is the scored result for one URL.
type Prediction struct {
	ID           uuid.UUID      `json:"id"`
	URL          string         `json:"url"`
	Label        Label          `json:"prediction"`
	Confidence   float64        `json:"confidence"`
	Class        int            `json:"class"`
	ModelVersion string         `json:"model_version"`
	Features     feature.Vector `json:"features"`
	Cached       bool           `json:"cached"`
	CreatedAt    time.Time      `json:"created_at"`
}

// BatchItem is one entry of a batch result. Exactly one of Prediction and
// Error is set.
type BatchItem struct {
	URL        string      `json:"url"`
	Prediction *Prediction `json:"prediction,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Explanation shows every intermediate stage of scoring a URL.
type Explanation struct {
	URL              string             `json:"url"`
	Features         feature.Vector     `json:"features"`
	Scaled           map[string]float64 `json:"scaled"`
	RegisteredDomain string             `json:"registered_domain,omitempty"`
	PublicSuffix     string             `json:"public_suffix,omitempty"`
	Probabilities    []float64          `json:"probabilities"`
	Prediction       *Prediction        `json:"prediction"`
}

// ModelInfo describes the loaded artifacts.
type ModelInfo struct {
	Version        string         `json:"version"`
	FeatureNames   []string       `json:"feature_names"`
	ScalerKind     string         `json:"scaler"`
	ClassifierKind string         `json:"classifier"`
	LoadedAt       time.Time      `json:"loaded_at"`
	Latency        map[string]any `json:"latency,omitempty"`
}
