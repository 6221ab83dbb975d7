package model

import (
	"errors"
	"fmt"

	"github.com/sreeram77/battery-pm/internal/artifact"
)

// ErrInvalidModel is returned when a loaded model artifact is inconsistent
var ErrInvalidModel = errors.New("invalid model")

// LoadForest reads a forest artifact written by SaveJSON
func LoadForest(store *artifact.Store, path string) (*Forest, error) {
	var f Forest
	if err := store.LoadJSON(path, &f); err != nil {
		return nil, err
	}
	if len(f.Features) == 0 || len(f.Trees) == 0 {
		return nil, fmt.Errorf("%w: %s has no features or trees", ErrInvalidModel, path)
	}
	for i, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return nil, fmt.Errorf("%w: tree %d is empty", ErrInvalidModel, i)
		}
	}
	return &f, nil
}

// LoadSequence reads a sequence artifact written by SaveJSON
func LoadSequence(store *artifact.Store, path string) (*Sequence, error) {
	var s Sequence
	if err := store.LoadJSON(path, &s); err != nil {
		return nil, err
	}
	n := len(s.Features)
	switch {
	case n == 0 || s.Units <= 0:
		return nil, fmt.Errorf("%w: %s has no features or units", ErrInvalidModel, path)
	case len(s.Mean) != n || len(s.Std) != n:
		return nil, fmt.Errorf("%w: scaler size does not match features", ErrInvalidModel)
	case len(s.Input) != s.Units || len(s.Bias) != s.Units:
		return nil, fmt.Errorf("%w: input weights do not match units", ErrInvalidModel)
	case len(s.Recurrent) != s.Units*s.Units:
		return nil, fmt.Errorf("%w: recurrent weights do not match units", ErrInvalidModel)
	case len(s.Readout) != s.Units+1:
		return nil, fmt.Errorf("%w: readout does not match units", ErrInvalidModel)
	}
	return &s, nil
}
