package mask

import (
	"encoding/json"
	"fmt"
	"slices"
)

// WholeRunSentinel is the single-element encoding of a full mask in the
// output document
const WholeRunSentinel = -1

// Mask is the set of bad lumisections of a chamber: either a partial set of
// lumisection indices or the whole run. The zero value is an empty partial
// mask.
type Mask struct {
	full         bool
	lumisections map[int]struct{}
}

// Partial returns a partial mask with the given (possibly repeated) indices
func Partial(lumisections ...int) Mask {
	m := Mask{lumisections: make(map[int]struct{}, len(lumisections))}
	for _, ls := range lumisections {
		m.lumisections[ls] = struct{}{}
	}
	return m
}

// Full returns a whole-run mask
func Full() Mask {
	return Mask{full: true}
}

// IsFull reports whether every lumisection is masked
func (m Mask) IsFull() bool {
	return m.full
}

// IsEmpty reports whether nothing is masked
func (m Mask) IsEmpty() bool {
	return !m.full && len(m.lumisections) == 0
}

// Len returns the number of masked lumisection indices of a partial mask.
// It is zero for a full mask.
func (m Mask) Len() int {
	return len(m.lumisections)
}

// Has reports whether the lumisection is masked
func (m Mask) Has(ls int) bool {
	if m.full {
		return true
	}
	_, ok := m.lumisections[ls]
	return ok
}

// Lumisections returns the sorted masked indices of a partial mask, or nil
// for a full mask
func (m Mask) Lumisections() []int {
	if m.full {
		return nil
	}

	out := make([]int, 0, len(m.lumisections))
	for ls := range m.lumisections {
		out = append(out, ls)
	}
	slices.Sort(out)
	return out
}

// add marks one more lumisection. It is a no-op on a full mask.
func (m *Mask) add(ls int) {
	if m.full {
		return
	}
	if m.lumisections == nil {
		m.lumisections = make(map[int]struct{})
	}
	m.lumisections[ls] = struct{}{}
}

func (m Mask) String() string {
	if m.full {
		return "full"
	}
	return fmt.Sprint(m.Lumisections())
}

// MarshalJSON encodes a full mask as [-1] and a partial mask as a sorted
// array of indices, [] when empty
func (m Mask) MarshalJSON() ([]byte, error) {
	if m.full {
		return json.Marshal([]int{WholeRunSentinel})
	}
	return json.Marshal(m.Lumisections())
}

// UnmarshalJSON decodes the output document encoding
func (m *Mask) UnmarshalJSON(data []byte) error {
	var lumisections []int
	if err := json.Unmarshal(data, &lumisections); err != nil {
		return fmt.Errorf("decoding mask: %w", err)
	}

	if slices.Contains(lumisections, WholeRunSentinel) {
		if len(lumisections) != 1 {
			return fmt.Errorf("decoding mask: sentinel %d mixed with lumisections", WholeRunSentinel)
		}
		*m = Full()
		return nil
	}
	for _, ls := range lumisections {
		if ls < 0 {
			return fmt.Errorf("decoding mask: negative lumisection %d", ls)
		}
	}

	*m = Partial(lumisections...)
	return nil
}
