// Package options materializes the final transform options for a request by
// merging mode defaults, derivative presets, per-origin overrides and query
// parameters.
package options

import (
	"log/slog"
	"net/url"
	"strconv"

	"github.com/vidproxy/vidproxy/internal/config"
	"github.com/vidproxy/vidproxy/internal/domain/model"
	"github.com/vidproxy/vidproxy/internal/imquery"
)

// Recognized transform query parameters.
const (
	ParamWidth       = "width"
	ParamHeight      = "height"
	ParamMode        = "mode"
	ParamQuality     = "quality"
	ParamCompression = "compression"
	ParamFormat      = "format"
	ParamTime        = "time"
	ParamDuration    = "duration"
	ParamCols        = "cols"
	ParamRows        = "rows"
	ParamInterval    = "interval"
	ParamDerivative  = "derivative"
)

// Resolver merges option sources in strict precedence: mode defaults, then
// derivative defaults, then path-pattern overrides, then query parameters.
// When a derivative is chosen the canonical dimensions win over anything the
// client asked for; the client's dimensions survive only as diagnostics.
type Resolver struct {
	routing *config.Routing
	imquery *imquery.Resolver
}

// NewResolver creates an option resolver over the routing configuration.
func NewResolver(routing *config.Routing, imqueryResolver *imquery.Resolver) *Resolver {
	return &Resolver{routing: routing, imquery: imqueryResolver}
}

// Resolve produces the final TransformOptions for a request. The result
// feeds key derivation, the upstream URL, cache tagging and metadata.
func (r *Resolver) Resolve(query url.Values, origin *model.Origin) (model.TransformOptions, error) {
	opts := r.routing.Defaults
	if opts.Version == 0 {
		opts.Version = 1
	}

	// Mode first; it gates which parameters apply.
	if m := query.Get(ParamMode); m != "" {
		mode := model.Mode(m)
		if !mode.IsValid() {
			return opts, model.BadRequest("unsupported mode %q", m)
		}
		opts.Mode = mode
	}

	// Path-pattern overrides sit between derivative defaults and the query,
	// so apply them before query parameters.
	applyParams(&opts, mapValues(origin.TransformationOverrides))
	applyParams(&opts, query)

	// Derivative selection: explicit parameter wins over IMQuery mapping.
	derivativeName := query.Get(ParamDerivative)
	mappedFrom := ""
	imq := imquery.Parse(query)
	if derivativeName == "" && imq.Present() {
		if d, ok := r.imquery.Resolve(imq); ok {
			derivativeName = d.Name
			mappedFrom = "imquery"
		}
	}

	if derivativeName != "" {
		d, ok := r.routing.Derivative(derivativeName)
		if !ok {
			return opts, model.BadRequest("unknown derivative %q", derivativeName)
		}
		opts.RequestedWidth = firstNonZero(imq.EffectiveWidth(), opts.Width)
		opts.RequestedHeight = firstNonZero(imq.Height, opts.Height)
		opts.MappedFrom = mappedFrom
		opts = d.Apply(opts)
	}
	opts.HasIMQuery = imq.Present()
	logUnknownParams(query)

	if err := opts.Validate(); err != nil {
		return opts, model.BadRequest("%v", err)
	}
	return opts, nil
}

var recognizedParams = map[string]struct{}{
	ParamWidth: {}, ParamHeight: {}, ParamMode: {}, ParamQuality: {},
	ParamCompression: {}, ParamFormat: {}, ParamTime: {}, ParamDuration: {},
	ParamCols: {}, ParamRows: {}, ParamInterval: {}, ParamDerivative: {},
	imquery.ParamWidth: {}, imquery.ParamHeight: {}, imquery.ParamViewWidth: {},
	imquery.ParamViewHeight: {}, imquery.ParamDensity: {}, imquery.ParamRef: {},
	"debug": {}, "nocache": {}, "bypass": {},
}

// logUnknownParams surfaces ignored parameters without failing the request.
func logUnknownParams(query url.Values) {
	for name := range query {
		if _, ok := recognizedParams[name]; !ok {
			slog.Debug("ignoring unknown query parameter", "param", name)
		}
	}
}

// applyParams overlays recognized parameters onto opts. Values that fail
// enumeration or numeric validation fall back to what is already resolved,
// with a structured warning.
func applyParams(opts *model.TransformOptions, values url.Values) {
	setInt(values, ParamWidth, &opts.Width)
	setInt(values, ParamHeight, &opts.Height)

	if q := values.Get(ParamQuality); q != "" {
		if model.ValidQuality(q) {
			opts.Quality = q
		} else {
			slog.Warn("invalid quality value, keeping default", "value", q)
		}
	}
	if c := values.Get(ParamCompression); c != "" {
		if model.ValidCompression(c) {
			opts.Compression = c
		} else {
			slog.Warn("invalid compression value, keeping default", "value", c)
		}
	}
	if f := values.Get(ParamFormat); f != "" {
		opts.Format = f
	}

	if opts.Mode == model.ModeFrame || opts.Mode == model.ModeSpritesheet {
		if t := values.Get(ParamTime); t != "" {
			opts.Time = t
		}
		if d := values.Get(ParamDuration); d != "" {
			opts.Duration = d
		}
		setInt(values, ParamCols, &opts.Cols)
		setInt(values, ParamRows, &opts.Rows)
		if i := values.Get(ParamInterval); i != "" {
			opts.Interval = i
		}
	}
}

func setInt(values url.Values, name string, dst *int) {
	s := values.Get(name)
	if s == "" {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		slog.Warn("invalid integer parameter, keeping default", "param", name, "value", s)
		return
	}
	*dst = n
}

func mapValues(m map[string]string) url.Values {
	values := make(url.Values, len(m))
	for k, v := range m {
		values.Set(k, v)
	}
	return values
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
