package run

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	// DefaultLayout is the layout of run start times in run sheets,
	// e.g. 2021-07-30_19-28-00.
	DefaultLayout = "2006-01-02_15-04-05"

	// DefaultLocation is the time zone of the experiment site
	DefaultLocation = "Europe/Zurich"

	// AmbiguousEarlier picks the first occurrence of a repeated wall clock time
	AmbiguousEarlier AmbiguousPolicy = "earlier"
	// AmbiguousLater picks the second occurrence of a repeated wall clock time
	AmbiguousLater AmbiguousPolicy = "later"
	// AmbiguousReject fails on a repeated wall clock time
	AmbiguousReject AmbiguousPolicy = "reject"

	// NonexistentReject fails on a wall clock time skipped by a DST change
	NonexistentReject NonexistentPolicy = "reject"
	// NonexistentShiftForward reads a skipped wall clock time with the offset
	// in force before the change, which lands it after the gap
	NonexistentShiftForward NonexistentPolicy = "shift-forward"
)

var (
	// ErrAmbiguousTime is returned when a local time occurs twice and the
	// policy is AmbiguousReject
	ErrAmbiguousTime = errors.New("ambiguous local time")

	// ErrNonexistentTime is returned when a local time does not exist and
	// the policy is NonexistentReject
	ErrNonexistentTime = errors.New("nonexistent local time")

	validAmbiguousPolicies = map[AmbiguousPolicy]struct{}{
		AmbiguousEarlier: {},
		AmbiguousLater:   {},
		AmbiguousReject:  {},
	}

	validNonexistentPolicies = map[NonexistentPolicy]struct{}{
		NonexistentReject:       {},
		NonexistentShiftForward: {},
	}
)

// AmbiguousPolicy decides how a wall clock time repeated by a DST change
// (autumn fall-back) is resolved
type AmbiguousPolicy string

func (p AmbiguousPolicy) Validate() error {
	if _, ok := validAmbiguousPolicies[p]; !ok {
		return fmt.Errorf("invalid ambiguous time policy: %q", p)
	}
	return nil
}

// NonexistentPolicy decides how a wall clock time skipped by a DST change
// (spring-forward) is resolved
type NonexistentPolicy string

func (p NonexistentPolicy) Validate() error {
	if _, ok := validNonexistentPolicies[p]; !ok {
		return fmt.Errorf("invalid nonexistent time policy: %q", p)
	}
	return nil
}

// Resolver converts run start times recorded in local wall clock time to
// UTC and builds run windows
type Resolver struct {
	Location    *time.Location
	Layout      string
	Ambiguous   AmbiguousPolicy
	Nonexistent NonexistentPolicy
}

// NewResolver creates a resolver for the named IANA location with the
// default layout and policies
func NewResolver(location string) (*Resolver, error) {
	loc, err := time.LoadLocation(location)
	if err != nil {
		return nil, fmt.Errorf("loading location %q: %w", location, err)
	}

	return &Resolver{
		Location:    loc,
		Layout:      DefaultLayout,
		Ambiguous:   AmbiguousEarlier,
		Nonexistent: NonexistentReject,
	}, nil
}

// Parse parses a local wall clock string with the resolver layout and
// converts it to UTC
func (r *Resolver) Parse(value string) (time.Time, error) {
	wall, err := time.Parse(r.Layout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing local time %q: %w", value, err)
	}
	return r.ToUTC(wall)
}

// ToUTC interprets the calendar fields of wall (its location is ignored) in
// the resolver location and returns the matching UTC instant, applying the
// configured DST policies.
func (r *Resolver) ToUTC(wall time.Time) (time.Time, error) {
	naive := time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), time.UTC)

	// Offsets in force a day either side bracket any single DST transition
	offsetBefore := r.offsetAt(naive.Add(-24 * time.Hour))
	offsetAfter := r.offsetAt(naive.Add(24 * time.Hour))

	var candidates []time.Time
	for _, offset := range []int{offsetBefore, offsetAfter} {
		utc := naive.Add(-time.Duration(offset) * time.Second)
		if r.offsetAt(utc) == offset && !slices.ContainsFunc(candidates, utc.Equal) {
			candidates = append(candidates, utc)
		}
	}
	slices.SortFunc(candidates, func(a, b time.Time) int { return a.Compare(b) })

	switch len(candidates) {
	case 1:
		return candidates[0], nil

	case 0:
		if r.Nonexistent == NonexistentShiftForward {
			return naive.Add(-time.Duration(offsetBefore) * time.Second), nil
		}
		return time.Time{}, fmt.Errorf("%w: %s in %s", ErrNonexistentTime, naive.Format(time.DateTime), r.Location)

	default:
		switch r.Ambiguous {
		case AmbiguousEarlier:
			return candidates[0], nil
		case AmbiguousLater:
			return candidates[len(candidates)-1], nil
		}
		return time.Time{}, fmt.Errorf("%w: %s in %s", ErrAmbiguousTime, naive.Format(time.DateTime), r.Location)
	}
}

// Window resolves the local run start and builds the run window
func (r *Resolver) Window(localStart string, lumisections int, lumisectionDuration time.Duration) (Window, error) {
	start, err := r.Parse(localStart)
	if err != nil {
		return Window{}, err
	}
	return NewWindow(start, lumisections, lumisectionDuration)
}

func (r *Resolver) offsetAt(t time.Time) int {
	_, offset := t.In(r.Location).Zone()
	return offset
}
