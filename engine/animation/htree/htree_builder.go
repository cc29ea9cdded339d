package htree

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// HTreeBuilderOption is a functional option for configuring an HTree during construction.
type HTreeBuilderOption func(*hTreeImpl)

// WithName is an option builder that sets the hierarchy name.
//
// Parameters:
//   - name: the hierarchy name, shortened to MaxNameLen
//
// Returns:
//   - HTreeBuilderOption: a function that applies the name option to a hierarchy
func WithName(name string) HTreeBuilderOption {
	return func(t *hTreeImpl) {
		t.name = clampName(name)
	}
}

// WithPivot is an option builder that appends a pivot. The first pivot added is the root and must use
// a negative parent; every later pivot must reference an earlier one.
//
// Parameters:
//   - name: the pivot name
//   - parent: the index of the parent pivot, negative for the root
//   - translation: the rest translation relative to the parent
//   - rotation: the rest rotation relative to the parent
//
// Returns:
//   - HTreeBuilderOption: a function that appends the pivot to a hierarchy
func WithPivot(name string, parent int, translation mgl32.Vec3, rotation mgl32.Quat) HTreeBuilderOption {
	return func(t *hTreeImpl) {
		if parent < 0 {
			parent = noParent
		}
		t.pivots = append(t.pivots, newPivot(name, parent, translation, rotation))
	}
}

// NewHTree creates a hierarchy from the given options and poses it at rest with an identity root.
//
// Parameters:
//   - options: the name and pivots of the hierarchy
//
// Returns:
//   - HTree: the hierarchy
//   - error: error if there are no pivots or a parent does not precede its child
func NewHTree(options ...HTreeBuilderOption) (HTree, error) {
	t := &hTreeImpl{scaleFactor: 1}
	for _, opt := range options {
		opt(t)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	t.BaseUpdate(mgl32.Ident4())
	return t, nil
}

// validate checks that pivot 0 is the only root and that parents precede their children.
func (t *hTreeImpl) validate() error {
	if len(t.pivots) == 0 {
		return ErrNoPivots
	}
	for i := range t.pivots {
		parent := t.pivots[i].parent
		if i == 0 {
			if parent != noParent {
				return fmt.Errorf("root pivot %s has parent %d: %w", t.pivots[i].name, parent, ErrInvalidParent)
			}
			continue
		}
		if parent < 0 || parent >= i {
			return fmt.Errorf("pivot %d (%s) has parent %d: %w", i, t.pivots[i].name, parent, ErrInvalidParent)
		}
	}
	return nil
}
