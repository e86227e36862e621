// Package refresh defines how often pages are recaptured and how a moment
// in time maps to the bucket a capture or lock belongs to.
package refresh

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownCadence is returned by Parse for unrecognized names.
var ErrUnknownCadence = errors.New("unknown refresh rate")

// Cadence is the recapture interval. It is a closed set; the zero value is
// not a valid cadence.
type Cadence int

const (
	Hourly Cadence = iota + 1
	Daily
	EveryMinute
)

// Parse accepts the tag ("hourly", "daily", "minute") or the short flag
// form ("hour", "day").
func Parse(s string) (Cadence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hour", "hourly":
		return Hourly, nil
	case "day", "daily":
		return Daily, nil
	case "minute", "every-minute":
		return EveryMinute, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCadence, s)
}

// Tag is the value stored in the catalog's lock-format and refresh-rate
// fields.
func (c Cadence) Tag() string {
	switch c {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case EveryMinute:
		return "minute"
	}
	return ""
}

// Layout is the time layout of a bucket string for this cadence.
func (c Cadence) Layout() string {
	switch c {
	case Hourly:
		return "2006010215"
	case Daily:
		return "20060102"
	case EveryMinute:
		return "200601021504"
	}
	return ""
}

// Start parses a bucket string back into the UTC instant its interval
// begins at.
func (c Cadence) Start(bucket string) (time.Time, error) {
	if !c.Valid() {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownCadence, c)
	}
	t, err := time.ParseInLocation(c.Layout(), bucket, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bucket %q is not a %s bucket: %w", bucket, c.Tag(), err)
	}
	return t, nil
}

// Bucket formats t in UTC with the cadence's layout. Two instants share a
// bucket exactly when they fall into the same interval.
func (c Cadence) Bucket(t time.Time) string {
	return t.UTC().Format(c.Layout())
}

// Valid reports whether c is one of the defined cadences.
func (c Cadence) Valid() bool {
	return c.Tag() != ""
}

func (c Cadence) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Cadence(%d)", int(c))
	}
	return c.Tag()
}

// Set and Type let a Cadence be used directly as a pflag value.
func (c *Cadence) Set(s string) error {
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c *Cadence) Type() string {
	return "cadence"
}
