package conversation

import (
	"fmt"
	"math"
)

// Dimension is one of the fixed mandate dimensions tracked by a [Checklist].
type Dimension int

const (
	DimensionWho Dimension = iota
	DimensionWhat
	DimensionWhen
	DimensionWhere
	DimensionHow

	dimensionCount
)

var dimensionNames = [dimensionCount]string{"who", "what", "when", "where", "how"}

// String returns the lower-case dimension name, e.g. "who".
func (d Dimension) String() string {
	if d < 0 || d >= dimensionCount {
		return "unknown"
	}
	return dimensionNames[d]
}

// MarshalText implements [encoding.TextMarshaler].
func (d Dimension) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Dimension) UnmarshalText(b []byte) error {
	v, ok := ParseDimension(string(b))
	if !ok {
		return fmt.Errorf("conversation: unknown dimension %q", string(b))
	}
	*d = v
	return nil
}

// ParseDimension maps a name such as "when" to its [Dimension].
func ParseDimension(name string) (Dimension, bool) {
	for i, n := range dimensionNames {
		if n == name {
			return Dimension(i), true
		}
	}
	return 0, false
}

// AllDimensions returns every dimension in canonical order.
func AllDimensions() []Dimension {
	out := make([]Dimension, dimensionCount)
	for i := range out {
		out[i] = Dimension(i)
	}
	return out
}

// Source records how a checklist item was filled.
type Source string

const (
	SourceUserSaid  Source = "user_said"
	SourceGapAnswer Source = "gap_answer"
	SourceInferred  Source = "inferred"
)

// ChecklistItem is the exported view of one tracked dimension.
type ChecklistItem struct {
	Dimension Dimension `json:"dimension"`
	Value     string    `json:"value,omitempty"`
	Filled    bool      `json:"filled"`
	Source    Source    `json:"source,omitempty"`
}

type slot struct {
	tracked bool
	value   string
	filled  bool
	source  Source
}

// Checklist tracks a subset of the dimensions. It is a fixed array indexed
// by [Dimension], so each dimension appears at most once. The zero value
// tracks nothing. A Checklist is a value type; copying it copies its state.
type Checklist struct {
	slots [dimensionCount]slot
}

// NewChecklist returns a checklist tracking dims, all unfilled.
func NewChecklist(dims ...Dimension) Checklist {
	var c Checklist
	for _, d := range dims {
		c.Track(d)
	}
	return c
}

// Track adds d to the checklist as unfilled. Tracking an already tracked
// dimension leaves it unchanged.
func (c *Checklist) Track(d Dimension) {
	if !valid(d) {
		return
	}
	c.slots[d].tracked = true
}

// Fill upserts the item for d and marks it filled, even when value is empty.
func (c *Checklist) Fill(d Dimension, value string, source Source) {
	if !valid(d) {
		return
	}
	c.slots[d] = slot{tracked: true, value: value, filled: true, source: source}
}

// Item returns the item for d and whether d is tracked.
func (c Checklist) Item(d Dimension) (ChecklistItem, bool) {
	if !valid(d) || !c.slots[d].tracked {
		return ChecklistItem{}, false
	}
	return c.item(d), true
}

func (c Checklist) item(d Dimension) ChecklistItem {
	s := c.slots[d]
	return ChecklistItem{Dimension: d, Value: s.value, Filled: s.filled, Source: s.source}
}

// Items returns every tracked item in canonical dimension order.
func (c Checklist) Items() []ChecklistItem {
	var out []ChecklistItem
	for d := range dimensionCount {
		if c.slots[d].tracked {
			out = append(out, c.item(d))
		}
	}
	return out
}

// Unfilled returns the tracked items not yet filled, in canonical order.
func (c Checklist) Unfilled() []ChecklistItem {
	var out []ChecklistItem
	for d := range dimensionCount {
		if s := c.slots[d]; s.tracked && !s.filled {
			out = append(out, c.item(d))
		}
	}
	return out
}

// Len returns the number of tracked dimensions.
func (c Checklist) Len() int {
	n := 0
	for _, s := range c.slots {
		if s.tracked {
			n++
		}
	}
	return n
}

// FilledCount returns the number of filled dimensions.
func (c Checklist) FilledCount() int {
	n := 0
	for _, s := range c.slots {
		if s.filled {
			n++
		}
	}
	return n
}

// Complete reports whether every tracked dimension is filled.
func (c Checklist) Complete() bool {
	return c.FilledCount() == c.Len()
}

// Progress returns filled/tracked as a percentage rounded to the nearest
// integer. An empty checklist reports 0.
func (c Checklist) Progress() int {
	total := c.Len()
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(c.FilledCount()) / float64(total) * 100))
}

func valid(d Dimension) bool { return d >= 0 && d < dimensionCount }
