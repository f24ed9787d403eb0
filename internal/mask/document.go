package mask

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/roman-kulish/hv-mask/internal/hv"
)

const (
	// ReasonVoltage marks a mask computed from the voltage analysis
	ReasonVoltage Reason = "voltage"
	// ReasonDataUnavailable marks a chamber without usable HV data
	ReasonDataUnavailable Reason = "data-unavailable"
	// ReasonQualityFlagged marks a chamber flagged bad by the DAQ status
	ReasonQualityFlagged Reason = "quality-flagged"
	// ReasonNoExpectedCurrent marks a chamber for which no expected current
	// could be determined
	ReasonNoExpectedCurrent Reason = "no-expected-current"
)

// Reason records why a chamber got its mask
type Reason string

// Entry is the mask of one chamber and the reason for it
type Entry struct {
	Mask   Mask
	Reason Reason
}

// Document is the per-run mask of every chamber of the detector. Chambers
// never flagged hold an empty partial mask.
type Document struct {
	Detector string
	entries  map[hv.ChamberID]Entry
}

// NewDocument creates a document with an empty mask for every chamber
func NewDocument(detector string) *Document {
	d := &Document{
		Detector: detector,
		entries:  make(map[hv.ChamberID]Entry, 2*len(hv.AllSuperChambers())),
	}
	for _, id := range hv.AllChambers() {
		d.entries[id] = Entry{Mask: Partial(), Reason: ReasonVoltage}
	}
	return d
}

// Set stores the mask of a chamber
func (d *Document) Set(id hv.ChamberID, m Mask, reason Reason) {
	d.entries[id] = Entry{Mask: m, Reason: reason}
}

// ForceFull masks the whole run of a chamber, whatever was computed before
func (d *Document) ForceFull(id hv.ChamberID, reason Reason) {
	d.Set(id, Full(), reason)
}

// Entry returns the mask entry of a chamber
func (d *Document) Entry(id hv.ChamberID) (Entry, bool) {
	e, ok := d.entries[id]
	return e, ok
}

// Mask returns the mask of a chamber, empty when unknown
func (d *Document) Mask(id hv.ChamberID) Mask {
	return d.entries[id].Mask
}

// Chambers returns the chambers of the document in name order
func (d *Document) Chambers() []hv.ChamberID {
	ids := slices.Collect(maps.Keys(d.entries))
	slices.SortFunc(ids, func(a, b hv.ChamberID) int {
		return cmp.Compare(a.Name(d.Detector), b.Name(d.Detector))
	})
	return ids
}

// Len returns the number of chambers in the document
func (d *Document) Len() int {
	return len(d.entries)
}

// Stats counts chambers by mask kind
func (d *Document) Stats() (full, partial, clean int) {
	for _, e := range d.entries {
		switch {
		case e.Mask.IsFull():
			full++
		case e.Mask.IsEmpty():
			clean++
		default:
			partial++
		}
	}
	return
}

// MarshalJSON encodes the flat chamber name -> lumisections mapping consumed
// by the efficiency analyzer
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]Mask, len(d.entries))
	for id, e := range d.entries {
		out[id.Name(d.Detector)] = e.Mask
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a flat mask mapping. Decoded chambers get
// ReasonVoltage unless fully masked, in which case the reason is unknown
// and left empty.
func (d *Document) UnmarshalJSON(data []byte) error {
	var in map[string]Mask
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decoding mask document: %w", err)
	}

	d.entries = make(map[hv.ChamberID]Entry, len(in))
	for name, m := range in {
		id, detector, err := hv.ParseChamberID(name)
		if err != nil {
			return fmt.Errorf("decoding mask document: %w", err)
		}
		if d.Detector == "" {
			d.Detector = detector
		}

		var reason Reason
		if !m.IsFull() {
			reason = ReasonVoltage
		}
		d.entries[id] = Entry{Mask: m, Reason: reason}
	}
	return nil
}
