package model

import (
	"errors"
	"fmt"
)

// Mode identifies the kind of output a transformation produces.
type Mode string

const (
	ModeVideo       Mode = "video"
	ModeFrame       Mode = "frame"
	ModeSpritesheet Mode = "spritesheet"
	ModeAudio       Mode = "audio"
)

func (m Mode) IsValid() bool {
	switch m {
	case ModeVideo, ModeFrame, ModeSpritesheet, ModeAudio:
		return true
	default:
		return false
	}
}

func (m Mode) String() string {
	return string(m)
}

// Quality levels accepted by the upstream transformation endpoint.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
	QualityAuto   = "auto"
)

// Compression levels accepted by the upstream transformation endpoint.
const (
	CompressionLow    = "low"
	CompressionMedium = "medium"
	CompressionHigh   = "high"
	CompressionAuto   = "auto"
)

// ValidQuality reports whether q is a recognized quality level.
func ValidQuality(q string) bool {
	switch q {
	case QualityLow, QualityMedium, QualityHigh, QualityAuto:
		return true
	default:
		return false
	}
}

// ValidCompression reports whether c is a recognized compression level.
func ValidCompression(c string) bool {
	switch c {
	case CompressionLow, CompressionMedium, CompressionHigh, CompressionAuto:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidMode      = errors.New("invalid transformation mode")
	ErrInvalidDimension = errors.New("dimension must be a positive integer")
	ErrInvalidVersion   = errors.New("version must be a positive integer")
)

// TransformOptions is the canonical request intent. It is fully materialized
// by the option resolver before any cache interaction: once Derivative is set,
// Width/Height/Quality/Compression/Format carry the derivative's canonical
// values, never the client's raw dimensions.
type TransformOptions struct {
	Mode       Mode   `json:"mode"`
	Derivative string `json:"derivative,omitempty"`

	Width       int    `json:"width,omitempty"` // 0 = unset
	Height      int    `json:"height,omitempty"`
	Quality     string `json:"quality,omitempty"`
	Compression string `json:"compression,omitempty"`
	Format      string `json:"format,omitempty"`

	// Frame / spritesheet specific.
	Time     string `json:"time,omitempty"`
	Duration string `json:"duration,omitempty"`
	Cols     int    `json:"cols,omitempty"`
	Rows     int    `json:"rows,omitempty"`
	Interval string `json:"interval,omitempty"`

	// Version busts upstream caches; it never changes the cache key.
	Version int `json:"version,omitempty"`

	// Diagnostics preserved from IMQuery resolution.
	RequestedWidth  int    `json:"requestedWidth,omitempty"`
	RequestedHeight int    `json:"requestedHeight,omitempty"`
	MappedFrom      string `json:"mappedFrom,omitempty"`
	HasIMQuery      bool   `json:"hasIMQuery,omitempty"`
}

// Validate checks structural invariants. It does not resolve defaults; that is
// the option resolver's job.
func (o TransformOptions) Validate() error {
	if !o.Mode.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, o.Mode)
	}
	if o.Width < 0 || o.Height < 0 || o.Cols < 0 || o.Rows < 0 {
		return ErrInvalidDimension
	}
	if o.Version < 1 {
		return ErrInvalidVersion
	}
	if o.Quality != "" && !ValidQuality(o.Quality) {
		return fmt.Errorf("invalid quality %q", o.Quality)
	}
	if o.Compression != "" && !ValidCompression(o.Compression) {
		return fmt.Errorf("invalid compression %q", o.Compression)
	}
	return nil
}

// Derivative is a named transformation preset with canonical dimensions.
type Derivative struct {
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Quality     string `json:"quality,omitempty"`
	Compression string `json:"compression,omitempty"`
	Format      string `json:"format,omitempty"`
	Mode        Mode   `json:"mode,omitempty"`
}

// Apply copies the derivative's canonical values onto the options, replacing
// any client-supplied dimensions.
func (d Derivative) Apply(o TransformOptions) TransformOptions {
	o.Derivative = d.Name
	o.Width = d.Width
	o.Height = d.Height
	if d.Quality != "" {
		o.Quality = d.Quality
	}
	if d.Compression != "" {
		o.Compression = d.Compression
	}
	if d.Format != "" {
		o.Format = d.Format
	}
	if d.Mode != "" {
		o.Mode = d.Mode
	}
	return o
}

// Breakpoint maps a width range to a derivative for IMQuery resolution.
// Min/Max are inclusive bounds; a zero Max means unbounded.
type Breakpoint struct {
	Min        int    `json:"min,omitempty"`
	Max        int    `json:"max,omitempty"`
	Derivative string `json:"derivative"`
}

// Contains reports whether width falls inside the breakpoint's range.
func (b Breakpoint) Contains(width int) bool {
	if width < b.Min {
		return false
	}
	if b.Max > 0 && width > b.Max {
		return false
	}
	return true
}
