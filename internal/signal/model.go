package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
)

// Model is a binary XGBoost classifier parsed from the JSON dump
// Booster.save_model writes. Only the tree ensemble and base score
// are read; training metadata is ignored.
type Model struct {
	trees      []tree
	baseMargin float64
	features   int
}

type tree struct {
	left       []int
	right      []int
	defaultDir []int
	splitIdx   []int
	splitCond  []float64
	weights    []float64
}

// model dump schema, per the xgboost JSON format. Numeric model
// params arrive as strings ("5E-1"), hence the string fields.
type modelDump struct {
	Learner struct {
		LearnerModelParam struct {
			BaseScore   string `json:"base_score"`
			NumFeatures string `json:"num_feature"`
		} `json:"learner_model_param"`
		GradientBooster struct {
			Model struct {
				Trees []struct {
					LeftChildren    []int     `json:"left_children"`
					RightChildren   []int     `json:"right_children"`
					DefaultLeft     []int     `json:"default_left"`
					SplitIndices    []int     `json:"split_indices"`
					SplitConditions []float64 `json:"split_conditions"`
					BaseWeights     []float64 `json:"base_weights"`
				} `json:"trees"`
			} `json:"model"`
		} `json:"gradient_booster"`
		Objective struct {
			Name string `json:"name"`
		} `json:"objective"`
	} `json:"learner"`
}

// LoadModel parses an XGBoost JSON model dump from disk.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseModel(data)
}

func ParseModel(data []byte) (*Model, error) {
	var dump modelDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("parse model json: %w", err)
	}
	if name := dump.Learner.Objective.Name; name != "" && name != "binary:logistic" {
		return nil, fmt.Errorf("unsupported objective %q", name)
	}
	raw := dump.Learner.GradientBooster.Model.Trees
	if len(raw) == 0 {
		return nil, errors.New("model has no trees")
	}
	baseScore := 0.5
	if s := dump.Learner.LearnerModelParam.BaseScore; s != "" {
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse base_score: %w", err)
		}
		baseScore = parsed
	}
	if baseScore <= 0 || baseScore >= 1 {
		return nil, fmt.Errorf("base_score %v outside (0, 1)", baseScore)
	}
	features := 0
	if s := dump.Learner.LearnerModelParam.NumFeatures; s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("parse num_feature: %w", err)
		}
		features = parsed
	}
	m := &Model{
		baseMargin: math.Log(baseScore / (1 - baseScore)),
		features:   features,
	}
	for i, t := range raw {
		n := len(t.LeftChildren)
		if n == 0 || len(t.RightChildren) != n || len(t.SplitIndices) != n ||
			len(t.SplitConditions) != n || len(t.BaseWeights) != n {
			return nil, fmt.Errorf("tree %d has inconsistent node arrays", i)
		}
		m.trees = append(m.trees, tree{
			left:       t.LeftChildren,
			right:      t.RightChildren,
			defaultDir: t.DefaultLeft,
			splitIdx:   t.SplitIndices,
			splitCond:  t.SplitConditions,
			weights:    t.BaseWeights,
		})
	}
	return m, nil
}

// NumFeatures is the feature count the model was trained with, or 0
// when the dump omits it.
func (m *Model) NumFeatures() int { return m.features }

// Predict walks every tree on the scaled feature row and returns the
// probability of the positive class. Missing (NaN) values follow each
// node's default branch.
func (m *Model) Predict(row []float64) (float64, error) {
	if m.features > 0 && len(row) != m.features {
		return 0, fmt.Errorf("model expects %d features, got %d", m.features, len(row))
	}
	margin := m.baseMargin
	for _, t := range m.trees {
		margin += t.leaf(row)
	}
	return sigmoid(margin), nil
}

func (t tree) leaf(row []float64) float64 {
	node := 0
	for t.left[node] != -1 {
		idx := t.splitIdx[node]
		var goLeft bool
		switch {
		case idx >= len(row) || math.IsNaN(row[idx]):
			goLeft = t.defaultDir[node] != 0
		default:
			goLeft = row[idx] < t.splitCond[node]
		}
		if goLeft {
			node = t.left[node]
		} else {
			node = t.right[node]
		}
	}
	return t.weights[node]
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
