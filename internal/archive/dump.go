package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"math"
	"time"

	"github.com/roman-kulish/hv-mask/internal/hv"
)

// dumpDocument is the on-disk layout of a DCS dump: DCS folder name, then
// channel name, then [unix seconds, volts] pairs
type dumpDocument map[string]map[string][][2]float64

// DumpSource is an in-memory HV archive of one run
type DumpSource struct {
	Origin        string
	superChambers map[hv.SuperChamber]map[hv.Channel][]hv.Sample
}

// NewDumpSource creates an empty archive
func NewDumpSource(origin string) *DumpSource {
	return &DumpSource{
		Origin:        origin,
		superChambers: make(map[hv.SuperChamber]map[hv.Channel][]hv.Sample),
	}
}

// Add appends channel series to the archive of a superchamber
func (d *DumpSource) Add(sc hv.SuperChamber, series ...hv.ChannelSeries) {
	channels, ok := d.superChambers[sc]
	if !ok {
		channels = make(map[hv.Channel][]hv.Sample, len(hv.Channels))
		d.superChambers[sc] = channels
	}
	for _, s := range series {
		channels[s.Channel] = append(channels[s.Channel], s.Samples...)
	}
}

// Len returns the number of superchambers in the archive
func (d *DumpSource) Len() int {
	return len(d.superChambers)
}

// Channels returns the seven channel series of the superchamber in
// hv.Channels order. A missing superchamber or channel is ErrNotFound.
func (d *DumpSource) Channels(ctx context.Context, sc hv.SuperChamber) ([]hv.ChannelSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	channels, ok := d.superChambers[sc]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sc.DCSName())
	}

	series := make([]hv.ChannelSeries, 0, len(hv.Channels))
	for _, ch := range hv.Channels {
		samples, ok := channels[ch]
		if !ok {
			return nil, fmt.Errorf("%w: %s channel %s", ErrNotFound, sc.DCSName(), ch)
		}
		series = append(series, hv.ChannelSeries{Channel: ch, Samples: samples})
	}
	return series, nil
}

// All yields every superchamber of the archive with its channel series, in
// detector order. Channels absent from the archive are skipped.
func (d *DumpSource) All() iter.Seq2[hv.SuperChamber, []hv.ChannelSeries] {
	return func(yield func(hv.SuperChamber, []hv.ChannelSeries) bool) {
		for _, sc := range hv.AllSuperChambers() {
			channels, ok := d.superChambers[sc]
			if !ok {
				continue
			}

			series := make([]hv.ChannelSeries, 0, len(channels))
			for _, ch := range hv.Channels {
				if samples, ok := channels[ch]; ok {
					series = append(series, hv.ChannelSeries{Channel: ch, Samples: samples})
				}
			}
			if !yield(sc, series) {
				return
			}
		}
	}
}

// DecodeDump reads a JSON DCS dump. Folders and channels that are not part
// of the HV supply of a superchamber are ignored.
func DecodeDump(r io.Reader, origin string) (*DumpSource, error) {
	var doc dumpDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding dump: %w", err)
	}

	d := NewDumpSource(origin)
	for folder, channels := range doc {
		sc, err := hv.ParseDCSName(folder)
		if err != nil {
			continue
		}

		for name, points := range channels {
			ch := hv.Channel(name)
			if !ch.IsValid() {
				continue
			}

			samples := make([]hv.Sample, len(points))
			for i, p := range points {
				samples[i] = hv.Sample{Timestamp: fromUnix(p[0]), Value: p[1]}
			}
			d.Add(sc, hv.ChannelSeries{Channel: ch, Samples: samples})
		}
	}
	return d, nil
}

// Encode writes the archive in the JSON DCS dump layout
func (d *DumpSource) Encode(w io.Writer) error {
	doc := make(dumpDocument, len(d.superChambers))
	for sc, series := range d.All() {
		channels := make(map[string][][2]float64, len(series))
		for _, s := range series {
			points := make([][2]float64, len(s.Samples))
			for i, sample := range s.Samples {
				points[i] = [2]float64{toUnix(sample.Timestamp), sample.Value}
			}
			channels[s.Channel.String()] = points
		}
		doc[sc.DCSName()] = channels
	}

	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("encoding dump: %w", err)
	}
	return nil
}

// fromUnix converts fractional unix seconds, rounded to the millisecond
func fromUnix(sec float64) time.Time {
	ms := int64(math.Round(sec * 1e3))
	return time.UnixMilli(ms).UTC()
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1e3
}
