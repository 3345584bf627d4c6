package login

import (
	"encoding/json"
	"fmt"
)

// Label tags the concrete type of a State.
type Label int

const (
	LabelEngaged Label = iota
	LabelCohabiting
	LabelMarried
	LabelSeparated
	LabelDoghouse
	LabelMigratedFromSync11
)

var labelNames = [...]string{
	LabelEngaged:            "Engaged",
	LabelCohabiting:         "Cohabiting",
	LabelMarried:            "Married",
	LabelSeparated:          "Separated",
	LabelDoghouse:           "Doghouse",
	LabelMigratedFromSync11: "MigratedFromSync11",
}

// Labels lists every known label in progression order.
func Labels() []Label {
	return []Label{LabelEngaged, LabelCohabiting, LabelMarried, LabelSeparated, LabelDoghouse, LabelMigratedFromSync11}
}

func (l Label) String() string {
	if l >= 0 && int(l) < len(labelNames) {
		return labelNames[l]
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// ParseLabel returns the Label with the given name.
func ParseLabel(s string) (Label, error) {
	for i, name := range labelNames {
		if name == s {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownLabel)
}

func (l Label) MarshalJSON() ([]byte, error) {
	if l < 0 || int(l) >= len(labelNames) {
		return nil, fmt.Errorf("marshaling %v: %w", l, ErrUnknownLabel)
	}
	return json.Marshal(l.String())
}

func (l *Label) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("unmarshaling state label: %w", err)
	}
	parsed, err := ParseLabel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
