package hv

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	EndcapPositive Endcap = 1
	EndcapNegative Endcap = -1

	// ChambersPerEndcap is the number of superchamber positions in one endcap
	ChambersPerEndcap = 36

	// DefaultDetector is the prefix used in chamber names
	DefaultDetector = "GE11"
)

// Endcap is the sign of the detector endcap, +1 or -1
type Endcap int

// IsValid reports whether e is a known endcap
func (e Endcap) IsValid() bool {
	return e == EndcapPositive || e == EndcapNegative
}

// Letter returns the endcap letter used in chamber names: P or M
func (e Endcap) Letter() string {
	if e == EndcapNegative {
		return "M"
	}
	return "P"
}

// dcsSign returns the endcap marker used in DCS folder names
func (e Endcap) dcsSign() string {
	if e == EndcapNegative {
		return "_"
	}
	return "+"
}

// SuperChamber identifies a two-layer detector unit fed by seven HV channels
type SuperChamber struct {
	Endcap Endcap
	Number int // 1-36
}

// Validate checks the superchamber coordinates
func (sc SuperChamber) Validate() error {
	if !sc.Endcap.IsValid() {
		return fmt.Errorf("invalid endcap %d", sc.Endcap)
	}
	if sc.Number < 1 || sc.Number > ChambersPerEndcap {
		return fmt.Errorf("invalid chamber number %d", sc.Number)
	}
	return nil
}

// Layers returns the two chambers of the superchamber
func (sc SuperChamber) Layers() [2]ChamberID {
	return [2]ChamberID{
		{Endcap: sc.Endcap, Number: sc.Number, Layer: 1},
		{Endcap: sc.Endcap, Number: sc.Number, Layer: 2},
	}
}

// DCSName returns the folder name of the superchamber in DCS dumps,
// e.g. GE+1_1_07 or GE_1_1_07.
func (sc SuperChamber) DCSName() string {
	return fmt.Sprintf("GE%s1_1_%02d", sc.Endcap.dcsSign(), sc.Number)
}

func (sc SuperChamber) String() string {
	return fmt.Sprintf("SC GE%s%02d", sc.Endcap.dcsSign(), sc.Number)
}

// AllSuperChambers returns every superchamber of the detector, positive
// endcap first.
func AllSuperChambers() []SuperChamber {
	scs := make([]SuperChamber, 0, 2*ChambersPerEndcap)
	for _, endcap := range []Endcap{EndcapPositive, EndcapNegative} {
		for n := 1; n <= ChambersPerEndcap; n++ {
			scs = append(scs, SuperChamber{Endcap: endcap, Number: n})
		}
	}
	return scs
}

// AllChambers returns every chamber (layer) of the detector
func AllChambers() []ChamberID {
	scs := AllSuperChambers()
	ids := make([]ChamberID, 0, 2*len(scs))
	for _, sc := range scs {
		layers := sc.Layers()
		ids = append(ids, layers[0], layers[1])
	}
	return ids
}

// ChamberID identifies one layer of a superchamber
type ChamberID struct {
	Endcap Endcap
	Number int // 1-36
	Layer  int // 1 or 2
}

// SuperChamber returns the superchamber the chamber belongs to
func (c ChamberID) SuperChamber() SuperChamber {
	return SuperChamber{Endcap: c.Endcap, Number: c.Number}
}

// SizeClass returns S for short (odd) and L for long (even) chambers
func (c ChamberID) SizeClass() string {
	if c.Number%2 == 1 {
		return "S"
	}
	return "L"
}

// Name formats the chamber name for the given detector prefix,
// e.g. GE11-M-07L2-S.
func (c ChamberID) Name(detector string) string {
	return fmt.Sprintf("%s-%s-%02dL%d-%s", detector, c.Endcap.Letter(), c.Number, c.Layer, c.SizeClass())
}

func (c ChamberID) String() string {
	return c.Name(DefaultDetector)
}

// ParseChamberID parses a chamber name produced by ChamberID.Name and
// returns the chamber and its detector prefix.
func ParseChamberID(name string) (ChamberID, string, error) {
	parts := strings.Split(name, "-")
	if len(parts) != 4 {
		return ChamberID{}, "", fmt.Errorf("invalid chamber name %q", name)
	}

	var id ChamberID
	switch parts[1] {
	case "P":
		id.Endcap = EndcapPositive
	case "M":
		id.Endcap = EndcapNegative
	default:
		return ChamberID{}, "", fmt.Errorf("invalid endcap in chamber name %q", name)
	}

	number, layer, ok := strings.Cut(parts[2], "L")
	if !ok {
		return ChamberID{}, "", fmt.Errorf("missing layer in chamber name %q", name)
	}

	var err error
	if id.Number, err = strconv.Atoi(number); err != nil {
		return ChamberID{}, "", fmt.Errorf("invalid chamber number in %q: %w", name, err)
	}
	if id.Layer, err = strconv.Atoi(layer); err != nil {
		return ChamberID{}, "", fmt.Errorf("invalid layer in %q: %w", name, err)
	}
	if id.Layer != 1 && id.Layer != 2 {
		return ChamberID{}, "", fmt.Errorf("invalid layer %d in chamber name %q", id.Layer, name)
	}
	if err = id.SuperChamber().Validate(); err != nil {
		return ChamberID{}, "", fmt.Errorf("chamber name %q: %w", name, err)
	}
	if parts[3] != id.SizeClass() {
		return ChamberID{}, "", fmt.Errorf("size class %q does not match chamber %d in %q", parts[3], id.Number, name)
	}

	return id, parts[0], nil
}

// ParseDCSName parses a DCS folder name such as GE+1_1_07 or GE_1_1_07
func ParseDCSName(name string) (SuperChamber, error) {
	rest, ok := strings.CutPrefix(name, "GE")
	if !ok {
		return SuperChamber{}, fmt.Errorf("invalid DCS name %q", name)
	}

	var sc SuperChamber
	switch {
	case strings.HasPrefix(rest, "+1_1_"):
		sc.Endcap, rest = EndcapPositive, rest[len("+1_1_"):]
	case strings.HasPrefix(rest, "_1_1_"):
		sc.Endcap, rest = EndcapNegative, rest[len("_1_1_"):]
	default:
		return SuperChamber{}, fmt.Errorf("invalid endcap in DCS name %q", name)
	}

	var err error
	if sc.Number, err = strconv.Atoi(rest); err != nil {
		return SuperChamber{}, fmt.Errorf("invalid chamber number in DCS name %q: %w", name, err)
	}
	if err = sc.Validate(); err != nil {
		return SuperChamber{}, fmt.Errorf("DCS name %q: %w", name, err)
	}
	return sc, nil
}
