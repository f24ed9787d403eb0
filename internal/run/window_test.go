package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindow(t *testing.T) {
	w, err := NewWindow(time.Unix(1000, 0), 10, 24*time.Second)
	require.NoError(t, err)

	assert.Equal(t, time.Unix(1240, 0).UTC(), w.Stop)
	assert.Equal(t, time.UTC, w.Start.Location())

	_, err = NewWindow(time.Unix(1000, 0), 0, 24*time.Second)
	assert.Error(t, err)
	_, err = NewWindow(time.Unix(1000, 0), 10, 0)
	assert.Error(t, err)
}

func TestWindow_FractionalLumisection(t *testing.T) {
	w, err := NewWindow(time.Unix(0, 0), 100, 23300*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, time.Unix(2330, 0).UTC(), w.Stop)
	assert.Equal(t, 0, w.Lumisection(time.Unix(23, 0)))
	assert.Equal(t, 1, w.Lumisection(time.Unix(24, 0)))
	assert.Equal(t, 2, w.Lumisection(time.UnixMilli(46600)))
}

func TestWindow_Contains(t *testing.T) {
	w, err := NewWindow(time.Unix(1000, 0), 10, 24*time.Second)
	require.NoError(t, err)

	assert.False(t, w.Contains(time.Unix(1000, 0)))
	assert.True(t, w.Contains(time.Unix(1001, 0)))
	assert.True(t, w.Contains(time.Unix(1239, 0)))
	assert.False(t, w.Contains(time.Unix(1240, 0)))
}

func TestWindow_Lumisection(t *testing.T) {
	w, err := NewWindow(time.Unix(1000, 0), 10, 24*time.Second)
	require.NoError(t, err)

	tests := map[int64]int{
		1001: 0,
		1023: 0,
		1024: 1,
		1072: 3,
		1095: 3,
		1096: 4,
		1239: 9,
	}
	for sec, want := range tests {
		assert.Equal(t, want, w.Lumisection(time.Unix(sec, 0)), "t=%d", sec)
	}
}
