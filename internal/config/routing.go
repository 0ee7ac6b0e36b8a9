package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vidproxy/vidproxy/internal/domain/model"
)

// Routing holds the declarative routing rules: origins, derivatives and
// responsive breakpoints. It is loaded once at startup and read-only after;
// live swaps publish a fresh instance through an atomic pointer.
type Routing struct {
	Origins     []*model.Origin             `json:"origins"`
	Derivatives map[string]model.Derivative `json:"derivatives"`
	// Breakpoints are sorted, non-overlapping width ranges covering [0, inf).
	Breakpoints []model.Breakpoint `json:"responsiveBreakpoints"`
	// Defaults apply before any derivative or query parameter.
	Defaults model.TransformOptions `json:"videoDefaults"`
}

// LoadRouting reads and validates the JSON routing file at path.
func LoadRouting(path string) (*Routing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing config: %w", err)
	}
	return ParseRouting(data)
}

// ParseRouting parses routing JSON, compiles origin matchers, and checks the
// breakpoint and derivative invariants.
func ParseRouting(data []byte) (*Routing, error) {
	var r Routing
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse routing config: %w", err)
	}

	for _, o := range r.Origins {
		if err := o.Compile(); err != nil {
			return nil, err
		}
	}

	for name, d := range r.Derivatives {
		if d.Name == "" {
			d.Name = name
			r.Derivatives[name] = d
		}
		if d.Width <= 0 || d.Height <= 0 {
			return nil, fmt.Errorf("derivative %q: dimensions must be positive", name)
		}
	}

	for i, bp := range r.Breakpoints {
		if _, ok := r.Derivatives[bp.Derivative]; !ok {
			return nil, fmt.Errorf("breakpoint %d references unknown derivative %q", i, bp.Derivative)
		}
		if i > 0 {
			prev := r.Breakpoints[i-1]
			if prev.Max == 0 || bp.Min != prev.Max+1 {
				return nil, fmt.Errorf("breakpoints must be sorted, non-overlapping and contiguous at index %d", i)
			}
		} else if bp.Min != 0 {
			return nil, fmt.Errorf("breakpoints must cover width 0")
		}
	}
	if n := len(r.Breakpoints); n > 0 && r.Breakpoints[n-1].Max != 0 {
		return nil, fmt.Errorf("last breakpoint must be unbounded")
	}

	if r.Defaults.Mode == "" {
		r.Defaults.Mode = model.ModeVideo
	}
	if r.Defaults.Version == 0 {
		r.Defaults.Version = 1
	}

	return &r, nil
}

// MatchOrigin finds the first origin whose matcher accepts path.
func (r *Routing) MatchOrigin(path string) (*model.Origin, []string, bool) {
	for _, o := range r.Origins {
		if captures, ok := o.Match(path); ok {
			return o, captures, true
		}
	}
	return nil, nil, false
}

// Derivative looks up a derivative preset by name.
func (r *Routing) Derivative(name string) (model.Derivative, bool) {
	d, ok := r.Derivatives[name]
	return d, ok
}
