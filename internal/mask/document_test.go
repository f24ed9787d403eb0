package mask

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/hv-mask/internal/hv"
)

func TestMask_JSON(t *testing.T) {
	tests := []struct {
		name string
		mask Mask
		want string
	}{
		{"zero value", Mask{}, `[]`},
		{"empty partial", Partial(), `[]`},
		{"sorted unique", Partial(7, 3, 3, 11), `[3,7,11]`},
		{"full", Full(), `[-1]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := json.Marshal(tc.mask)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(p))

			var decoded Mask
			require.NoError(t, json.Unmarshal(p, &decoded))
			assert.Equal(t, tc.mask.IsFull(), decoded.IsFull())
			assert.Equal(t, tc.mask.Lumisections(), decoded.Lumisections())
		})
	}
}

func TestMask_UnmarshalInvalid(t *testing.T) {
	for _, in := range []string{`[-1, 3]`, `[-2]`, `{}`, `"x"`} {
		var m Mask
		assert.Error(t, json.Unmarshal([]byte(in), &m), in)
	}
}

func TestMask_Has(t *testing.T) {
	assert.True(t, Full().Has(123))
	assert.True(t, Partial(1, 2).Has(2))
	assert.False(t, Partial(1, 2).Has(3))

	full := Full()
	full.add(4)
	assert.True(t, full.IsFull())
	assert.Zero(t, full.Len())
}

func TestDocument_EveryChamberPresent(t *testing.T) {
	doc := NewDocument(hv.DefaultDetector)
	id := hv.ChamberID{Endcap: hv.EndcapNegative, Number: 7, Layer: 2}
	doc.Set(id, Partial(3, 4), ReasonVoltage)
	doc.ForceFull(hv.ChamberID{Endcap: hv.EndcapPositive, Number: 1, Layer: 1}, ReasonQualityFlagged)

	p, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string][]int
	require.NoError(t, json.Unmarshal(p, &raw))

	require.Len(t, raw, 144)
	assert.Equal(t, []int{3, 4}, raw["GE11-M-07L2-S"])
	assert.Equal(t, []int{-1}, raw["GE11-P-01L1-S"])
	assert.Equal(t, []int{}, raw["GE11-P-02L1-L"])
	assert.NotContains(t, string(p), "null")

	full, partial, clean := doc.Stats()
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, partial)
	assert.Equal(t, 142, clean)
}

func TestDocument_RoundTrip(t *testing.T) {
	doc := NewDocument(hv.DefaultDetector)
	doc.Set(hv.ChamberID{Endcap: hv.EndcapPositive, Number: 12, Layer: 1}, Partial(0, 9), ReasonVoltage)
	doc.ForceFull(hv.ChamberID{Endcap: hv.EndcapPositive, Number: 12, Layer: 2}, ReasonDataUnavailable)

	p, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, json.Unmarshal(p, &decoded))

	assert.Equal(t, hv.DefaultDetector, decoded.Detector)
	assert.Equal(t, 144, decoded.Len())
	assert.Equal(t, []int{0, 9}, decoded.Mask(hv.ChamberID{Endcap: hv.EndcapPositive, Number: 12, Layer: 1}).Lumisections())
	assert.True(t, decoded.Mask(hv.ChamberID{Endcap: hv.EndcapPositive, Number: 12, Layer: 2}).IsFull())

	ids := decoded.Chambers()
	require.Len(t, ids, 144)
	assert.Equal(t, "GE11-M-01L1-S", ids[0].Name(decoded.Detector))
}

func TestDocument_UnmarshalInvalidName(t *testing.T) {
	var d Document
	assert.Error(t, json.Unmarshal([]byte(`{"GE11-Q-01L1-S": []}`), &d))
}
