package tool

import (
	"fmt"
	"regexp"
	"strings"
)

var baselineNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// BaselineKind selects the historical slot a run is compared against and
// stored into. The zero value is the "old" slot.
type BaselineKind struct {
	name string
}

// OldBaseline is the rotating slot holding the previous run.
func OldBaseline() BaselineKind { return BaselineKind{} }

// NamedBaseline is a slot addressed by name. The name must be valid, see
// ParseBaselineName.
func NamedBaseline(name string) BaselineKind { return BaselineKind{name: name} }

// IsOld reports whether b is the old slot.
func (b BaselineKind) IsOld() bool { return b.name == "" }

// Name returns the baseline name, empty for the old slot.
func (b BaselineKind) Name() string { return b.name }

func (b BaselineKind) String() string {
	if b.IsOld() {
		return "old"
	}
	return b.name
}

// ParseBaselineName validates a user supplied baseline name.
func ParseBaselineName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !baselineNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid baseline name %q: only ASCII letters, digits and '_' are allowed", name)
	}
	return name, nil
}
