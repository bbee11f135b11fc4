package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Export formats and constraint types understood by the host.
const (
	FormatPNG = "PNG"
	FormatJPG = "JPG"
	FormatSVG = "SVG"
	FormatPDF = "PDF"

	ConstraintScale  = "SCALE"
	ConstraintWidth  = "WIDTH"
	ConstraintHeight = "HEIGHT"
)

// ErrInvalidSettings indicates export settings the host cannot honour.
var ErrInvalidSettings = errors.New("invalid export settings")

// Constraint bounds the size of an exported image.
type Constraint struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// ExportSettings is the fully resolved export configuration.
type ExportSettings struct {
	Format       string     `json:"format"`
	ContentsOnly bool       `json:"contentsOnly"`
	Constraint   Constraint `json:"constraint"`
}

// ExportOverride holds caller supplied settings. Unset fields keep the defaults.
type ExportOverride struct {
	Format       string      `json:"format,omitempty"`
	ContentsOnly *bool       `json:"contentsOnly,omitempty"`
	Constraint   *Constraint `json:"constraint,omitempty"`
}

// DefaultExportSettings returns PNG, contents only, at scale 1.
func DefaultExportSettings() ExportSettings {
	return ExportSettings{
		Format:       FormatPNG,
		ContentsOnly: true,
		Constraint:   Constraint{Type: ConstraintScale, Value: 1},
	}
}

// MergeExportSettings shallow-merges o over the defaults. A caller constraint
// replaces the default constraint as a whole.
func MergeExportSettings(o ExportOverride) ExportSettings {
	s := DefaultExportSettings()
	if o.Format != "" {
		s.Format = o.Format
	}
	if o.ContentsOnly != nil {
		s.ContentsOnly = *o.ContentsOnly
	}
	if o.Constraint != nil {
		s.Constraint = *o.Constraint
	}
	return s
}

// Validate checks format and constraint.
func (s ExportSettings) Validate() error {
	switch strings.ToUpper(s.Format) {
	case FormatPNG, FormatJPG, FormatSVG, FormatPDF:
	default:
		return fmt.Errorf("%w: format %q", ErrInvalidSettings, s.Format)
	}
	switch s.Constraint.Type {
	case ConstraintScale, ConstraintWidth, ConstraintHeight:
	default:
		return fmt.Errorf("%w: constraint %q", ErrInvalidSettings, s.Constraint.Type)
	}
	if s.Constraint.Value <= 0 {
		return fmt.Errorf("%w: constraint value %v", ErrInvalidSettings, s.Constraint.Value)
	}
	return nil
}
