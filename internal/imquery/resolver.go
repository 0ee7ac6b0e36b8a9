// Package imquery maps responsive-sizing request parameters to named
// derivatives with canonical dimensions.
package imquery

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/vidproxy/vidproxy/internal/domain/model"
)

// Recognized query parameters.
const (
	ParamWidth      = "imwidth"
	ParamHeight     = "imheight"
	ParamViewWidth  = "im-viewwidth"
	ParamViewHeight = "im-viewheight"
	ParamDensity    = "im-density"
	ParamRef        = "imref"
)

// widthBucket rounds width hints to the nearest 10px before matching, which
// keeps cache cardinality down without visibly changing the selection.
const widthBucket = 10

// dimensionErrorThreshold is the maximum relative dimension error above which
// no derivative is chosen for a width+height request.
const dimensionErrorThreshold = 0.25

// Params are the responsive-sizing hints extracted from a request.
type Params struct {
	Width      int
	Height     int
	ViewWidth  int
	ViewHeight int
	Density    float64
}

// Present reports whether any recognized IMQuery parameter was supplied.
func (p Params) Present() bool {
	return p.Width > 0 || p.Height > 0 || p.ViewWidth > 0 || p.ViewHeight > 0 || p.Density > 0
}

// Parse extracts IMQuery parameters from a query string. The compound imref
// parameter (a comma-separated k=v list) backfills width and height when the
// explicit hints are absent.
func Parse(query url.Values) Params {
	p := Params{
		Width:      intParam(query.Get(ParamWidth)),
		Height:     intParam(query.Get(ParamHeight)),
		ViewWidth:  intParam(query.Get(ParamViewWidth)),
		ViewHeight: intParam(query.Get(ParamViewHeight)),
	}
	if d, err := strconv.ParseFloat(query.Get(ParamDensity), 64); err == nil && d > 0 {
		p.Density = d
	}

	if ref := query.Get(ParamRef); ref != "" {
		for _, pair := range strings.Split(ref, ",") {
			k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok {
				continue
			}
			switch strings.TrimSpace(k) {
			case "w", "width":
				if p.Width == 0 {
					p.Width = intParam(strings.TrimSpace(v))
				}
			case "h", "height":
				if p.Height == 0 {
					p.Height = intParam(strings.TrimSpace(v))
				}
			}
		}
	}

	return p
}

func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// EffectiveWidth is the width hint used for matching: the explicit width, or
// the viewport width scaled by device density when no explicit width exists.
func (p Params) EffectiveWidth() int {
	if p.Width > 0 {
		return p.Width
	}
	if p.ViewWidth > 0 {
		if p.Density > 0 {
			return int(math.Round(float64(p.ViewWidth) * p.Density))
		}
		return p.ViewWidth
	}
	return 0
}

// Resolver selects a derivative for IMQuery hints. Mapping results are
// memoized by the normalized (width, height) pair for the process lifetime;
// breakpoints and derivatives are read-only after construction.
type Resolver struct {
	breakpoints []model.Breakpoint
	derivatives map[string]model.Derivative

	mu   sync.Mutex
	memo map[[2]int]string
}

// NewResolver creates a resolver over the configured breakpoints and
// derivative presets.
func NewResolver(breakpoints []model.Breakpoint, derivatives map[string]model.Derivative) *Resolver {
	return &Resolver{
		breakpoints: breakpoints,
		derivatives: derivatives,
		memo:        make(map[[2]int]string),
	}
}

// Resolve picks the derivative for the given hints. Width-only requests use
// breakpoint matching with 10px bucketing; width+height requests use closest
// derivative by relative dimension error, rejecting matches beyond the 25%
// threshold. Returns false when no derivative applies.
func (r *Resolver) Resolve(p Params) (model.Derivative, bool) {
	width := p.EffectiveWidth()
	height := p.Height
	if height == 0 && p.ViewHeight > 0 && p.Width == 0 {
		height = p.ViewHeight
	}
	if width == 0 && height == 0 {
		return model.Derivative{}, false
	}

	if height == 0 {
		width = bucketWidth(width)
	}
	key := [2]int{width, height}

	r.mu.Lock()
	name, hit := r.memo[key]
	r.mu.Unlock()
	if hit {
		d, ok := r.derivatives[name]
		return d, ok && name != ""
	}

	var resolved string
	if height == 0 {
		resolved = r.byBreakpoint(width)
	} else {
		resolved = r.byClosestDimensions(width, height)
	}

	r.mu.Lock()
	r.memo[key] = resolved
	r.mu.Unlock()

	if resolved == "" {
		return model.Derivative{}, false
	}
	d, ok := r.derivatives[resolved]
	return d, ok
}

func bucketWidth(width int) int {
	bucketed := (width + widthBucket/2) / widthBucket * widthBucket
	if bucketed == 0 {
		bucketed = widthBucket
	}
	return bucketed
}

// byBreakpoint returns the first breakpoint range containing width. Ranges
// are validated at config load to be sorted, non-overlapping and to cover
// [0, inf), so a match always exists when any breakpoints are configured.
func (r *Resolver) byBreakpoint(width int) string {
	for _, bp := range r.breakpoints {
		if bp.Contains(width) {
			return bp.Derivative
		}
	}
	return ""
}

// byClosestDimensions selects the derivative minimizing the Euclidean error
// over relative width and height differences.
func (r *Resolver) byClosestDimensions(width, height int) string {
	best := ""
	bestErr := math.MaxFloat64

	for name, d := range r.derivatives {
		if d.Width <= 0 || d.Height <= 0 {
			continue
		}
		we := (float64(d.Width) - float64(width)) / float64(width)
		he := (float64(d.Height) - float64(height)) / float64(height)
		e := math.Sqrt(we*we + he*he)
		if e < bestErr || (e == bestErr && name < best) {
			bestErr = e
			best = name
		}
	}

	if bestErr > dimensionErrorThreshold {
		return ""
	}
	return best
}
