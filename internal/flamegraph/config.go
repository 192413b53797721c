// Package flamegraph folds callgrind cost tables into stacks and renders
// regular and differential flame graphs as SVG.
package flamegraph

import (
	"fmt"
	"strings"

	"github.com/mwiater/cgbench/internal/callgrind"
)

// Kind selects which flame graphs are rendered.
type Kind int

const (
	KindAll Kind = iota
	KindNone
	KindRegular
	KindDifferential
)

var kindNames = map[Kind]string{
	KindAll:          "all",
	KindNone:         "none",
	KindRegular:      "regular",
	KindDifferential: "differential",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if strings.EqualFold(name, strings.TrimSpace(string(text))) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown flamegraph kind %q", text)
}

// Direction is the growth direction of the stacks.
type Direction int

const (
	TopToBottom Direction = iota
	BottomToTop
)

func (d Direction) String() string {
	if d == BottomToTop {
		return "bottom_to_top"
	}
	return "top_to_bottom"
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(string(text)), "-", "_")) {
	case "top_to_bottom", "toptobottom":
		*d = TopToBottom
	case "bottom_to_top", "bottomtotop":
		*d = BottomToTop
	default:
		return fmt.Errorf("unknown flamegraph direction %q", text)
	}
	return nil
}

// Config of the flame graphs of one benchmark.
type Config struct {
	Kind                  Kind
	EventKinds            []callgrind.EventKind
	Direction             Direction
	NegateDifferential    bool
	NormalizeDifferential bool
	Title                 string
	Subtitle              string
	// MinWidth is the minimum frame width in pixels. Narrower frames are omitted.
	MinWidth float64
}

// DefaultConfig renders all flame graphs of the estimated cycles.
func DefaultConfig() Config {
	return Config{
		Kind:       KindAll,
		EventKinds: []callgrind.EventKind{callgrind.EstimatedCycles},
		Direction:  TopToBottom,
		MinWidth:   0.1,
	}
}

// Flamegraph is a resolved Config with a title.
type Flamegraph struct {
	Config Config
}

// New resolves the title of cfg. Without an explicit title the heading is
// split at its first space into title and subtitle.
func New(heading string, cfg Config) *Flamegraph {
	switch {
	case cfg.Title == "" && cfg.Subtitle == "":
		if title, subtitle, ok := strings.Cut(heading, " "); ok {
			cfg.Title, cfg.Subtitle = title, subtitle
		} else {
			cfg.Title = heading
		}
	case cfg.Title == "":
		cfg.Title = heading
	case cfg.Subtitle == "":
		cfg.Subtitle = heading
	}
	return &Flamegraph{Config: cfg}
}

// IsRegular reports whether regular flame graphs are rendered.
func (f *Flamegraph) IsRegular() bool {
	return f.Config.Kind == KindRegular || f.Config.Kind == KindAll
}

// IsDifferential reports whether differential flame graphs are rendered.
func (f *Flamegraph) IsDifferential() bool {
	return f.Config.Kind == KindDifferential || f.Config.Kind == KindAll
}

func (f *Flamegraph) disabled() bool {
	return f.Config.Kind == KindNone || len(f.Config.EventKinds) == 0
}

func (f *Flamegraph) hasDerivedEvents() bool {
	for _, k := range f.Config.EventKinds {
		if k.IsDerived() {
			return true
		}
	}
	return false
}

func (f *Flamegraph) options(event callgrind.EventKind) renderOptions {
	return renderOptions{
		Title:     f.Config.Title,
		Subtitle:  f.Config.Subtitle,
		CountName: event.String(),
		Direction: f.Config.Direction,
		MinWidth:  f.Config.MinWidth,
		Negate:    f.Config.NegateDifferential,
	}
}
