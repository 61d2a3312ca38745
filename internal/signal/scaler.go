package signal

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/features"
)

// Scaler applies the min-max transform exported alongside the model:
// scaled = raw*scale + min, per column. Column names are checked
// against the feature pipeline so a retrained model with a reordered
// feature set fails loudly at load time instead of predicting noise.
type Scaler struct {
	Names []string  `json:"features"`
	Min   []float64 `json:"min"`
	Scale []float64 `json:"scale"`
}

func LoadScaler(path string) (*Scaler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScaler(data)
}

func ParseScaler(data []byte) (*Scaler, error) {
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scaler json: %w", err)
	}
	if len(s.Names) == 0 || len(s.Min) != len(s.Names) || len(s.Scale) != len(s.Names) {
		return nil, fmt.Errorf("scaler arrays inconsistent: %d names, %d mins, %d scales",
			len(s.Names), len(s.Min), len(s.Scale))
	}
	if len(s.Names) != len(features.Columns) {
		return nil, fmt.Errorf("scaler has %d features, pipeline produces %d",
			len(s.Names), len(features.Columns))
	}
	for i, name := range s.Names {
		if name != features.Columns[i] {
			return nil, fmt.Errorf("scaler feature %d is %q, pipeline produces %q",
				i, name, features.Columns[i])
		}
	}
	return &s, nil
}

// Transform scales a raw feature row in place-order, returning a new
// slice.
func (s *Scaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Names) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Names), len(row))
	}
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = v*s.Scale[i] + s.Min[i]
	}
	return out, nil
}
