package pcm

import (
	"fmt"
	"slices"
	"strings"
)

// Interval is an inclusive range of acceptable values for one hardware parameter
type Interval struct {
	Min uint32
	Max uint32
}

// Single returns an interval that admits exactly v
func Single(v uint32) Interval {
	return Interval{Min: v, Max: v}
}

// Empty reports whether no value satisfies the interval
func (iv Interval) Empty() bool {
	return iv.Max < iv.Min
}

// Contains reports whether v lies inside the interval
func (iv Interval) Contains(v uint32) bool {
	return !iv.Empty() && v >= iv.Min && v <= iv.Max
}

// Near clamps v into the interval
func (iv Interval) Near(v uint32) uint32 {
	if v < iv.Min {
		return iv.Min
	}
	if v > iv.Max {
		return iv.Max
	}
	return v
}

func (iv Interval) String() string {
	if iv.Min == iv.Max {
		return fmt.Sprintf("%d", iv.Min)
	}
	return fmt.Sprintf("%d-%d", iv.Min, iv.Max)
}

// Capabilities describes the configuration space a device reports for playback
type Capabilities struct {
	Accesses     []Access
	Formats      []Format
	Rates        Interval
	RateSet      []uint32 // discrete rates; when non-empty only these are accepted
	Channels     Interval
	Periods      Interval
	BufferFrames Interval
}

// Validate reports an error when the space admits no configuration at all
func (c Capabilities) Validate() error {
	var problems []string

	if len(c.Accesses) == 0 {
		problems = append(problems, "no access types")
	}
	if len(c.Formats) == 0 {
		problems = append(problems, "no sample formats")
	}
	if c.Rates.Empty() && len(c.RateSet) == 0 {
		problems = append(problems, "no sample rates")
	}
	if c.Channels.Empty() || c.Channels.Max == 0 {
		problems = append(problems, "no channel counts")
	}
	if c.Periods.Empty() || c.Periods.Max == 0 {
		problems = append(problems, "no period counts")
	}
	if c.BufferFrames.Empty() || c.BufferFrames.Max == 0 {
		problems = append(problems, "no buffer sizes")
	}

	if len(problems) > 0 {
		return fmt.Errorf("empty configuration space: %s", strings.Join(problems, ", "))
	}
	return nil
}

// SupportsAccess reports whether a is in the access set
func (c Capabilities) SupportsAccess(a Access) bool {
	return slices.Contains(c.Accesses, a)
}

// SupportsFormat reports whether f is in the format set
func (c Capabilities) SupportsFormat(f Format) bool {
	return slices.Contains(c.Formats, f)
}

// NearestRate returns the supported rate closest to rate, preferring the higher one on ties
func (c Capabilities) NearestRate(rate uint32) (uint32, bool) {
	if len(c.RateSet) == 0 {
		if c.Rates.Empty() {
			return 0, false
		}
		return c.Rates.Near(rate), true
	}

	best := uint32(0)
	found := false
	for _, r := range c.RateSet {
		if !c.Rates.Empty() && !c.Rates.Contains(r) {
			continue
		}
		if !found || distance(r, rate) < distance(best, rate) ||
			(distance(r, rate) == distance(best, rate) && r > best) {
			best = r
			found = true
		}
	}
	return best, found
}

func (c Capabilities) String() string {
	accesses := make([]string, 0, len(c.Accesses))
	for _, a := range c.Accesses {
		accesses = append(accesses, a.String())
	}
	formats := make([]string, 0, len(c.Formats))
	for _, f := range c.Formats {
		formats = append(formats, f.String())
	}
	rates := c.Rates.String()
	if len(c.RateSet) > 0 {
		parts := make([]string, 0, len(c.RateSet))
		for _, r := range c.RateSet {
			parts = append(parts, fmt.Sprintf("%d", r))
		}
		rates = strings.Join(parts, ",")
	}
	return fmt.Sprintf("access=[%s] formats=[%s] rates=[%s] channels=%s periods=%s buffer_frames=%s",
		strings.Join(accesses, ","), strings.Join(formats, ","), rates,
		c.Channels, c.Periods, c.BufferFrames)
}

func distance(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
