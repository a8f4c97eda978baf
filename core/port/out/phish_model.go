package out

// Scaler applies the normalization the classifier was trained behind.
// Implementations are immutable after loading and safe for concurrent use.
type Scaler interface {
	Transform(row []float64) ([]float64, error)
	Kind() string
}

// Classifier is a pre-trained binary model over scaled rows.
type Classifier interface {
	// Predict returns the class index, 0 or 1.
	Predict(row []float64) (int, error)
	// PredictProba returns one probability per class, summing to 1.
	PredictProba(row []float64) ([]float64, error)
	Kind() string
}
