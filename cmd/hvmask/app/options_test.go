package app

import (
	"errors"
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions([]string{"-c", "hvmask.yaml", "-r", "343266, 343267,343268", "-iexp", "690,,700.5", "-refetch"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "hvmask.yaml", o.ConfigPath)
	assert.True(t, o.Refetch)
	assert.False(t, o.Plots)
	require.Len(t, o.Runs, 3)

	assert.Equal(t, 343266, o.Runs[0].Run)
	require.NotNil(t, o.Runs[0].Expected)
	assert.Equal(t, 690.0, *o.Runs[0].Expected)

	assert.Equal(t, 343267, o.Runs[1].Run)
	assert.Nil(t, o.Runs[1].Expected)

	require.NotNil(t, o.Runs[2].Expected)
	assert.Equal(t, 700.5, *o.Runs[2].Expected)
}

func TestParseOptions_FewerExpectedValues(t *testing.T) {
	o, err := ParseOptions([]string{"-c", "c.yaml", "-r", "1,2", "-iexp", "690", "-plots"}, io.Discard)
	require.NoError(t, err)

	assert.True(t, o.Plots)
	require.NotNil(t, o.Runs[0].Expected)
	assert.Nil(t, o.Runs[1].Expected)
}

func TestParseOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no config", []string{"-r", "1"}},
		{"no runs", []string{"-c", "c.yaml"}},
		{"bad run", []string{"-c", "c.yaml", "-r", "1,x"}},
		{"zero run", []string{"-c", "c.yaml", "-r", "0"}},
		{"duplicate run", []string{"-c", "c.yaml", "-r", "5,5"}},
		{"too many expected values", []string{"-c", "c.yaml", "-r", "1", "-iexp", "690,700"}},
		{"bad expected value", []string{"-c", "c.yaml", "-r", "1", "-iexp", "high"}},
		{"negative expected value", []string{"-c", "c.yaml", "-r", "1", "-iexp", "-690"}},
		{"unknown flag", []string{"-c", "c.yaml", "-r", "1", "-x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions(tt.args, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestParseOptions_Help(t *testing.T) {
	_, err := ParseOptions([]string{"-h"}, io.Discard)
	assert.True(t, errors.Is(err, flag.ErrHelp))
}
