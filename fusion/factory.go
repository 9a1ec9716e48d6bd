package fusion

import (
	"errors"
	"strings"
)

// NewStrategy constructs a strategy by name. Empty selects weighted fusion.
func NewStrategy(name string, vectorWeight, lexicalWeight float64, rrfK int) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "weighted":
		if vectorWeight <= 0 && lexicalWeight <= 0 {
			vectorWeight, lexicalWeight = 0.7, 0.3
		}
		return NewWeightedStrategy(map[string]float64{
			RetrieverVector:  vectorWeight,
			RetrieverLexical: lexicalWeight,
		}), nil
	case "rrf":
		return NewRRFStrategy(rrfK), nil
	default:
		return nil, errors.New("unsupported fusion strategy: " + name)
	}
}
