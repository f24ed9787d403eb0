package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Options are the command line options of a single invocation
type Options struct {
	ConfigPath string
	Runs       []RunRequest
	Refetch    bool
	Plots      bool
}

// RunRequest is one run to generate a mask document for
type RunRequest struct {
	Run      int
	Expected *float64 // nil to estimate the expected current
}

// ParseOptions parses the command line arguments, without the program name
func ParseOptions(args []string, output io.Writer) (*Options, error) {
	fs := flag.NewFlagSet("hvmask", flag.ContinueOnError)
	fs.SetOutput(output)

	var o Options
	var runs, expected string
	fs.StringVar(&o.ConfigPath, "c", "", "Path to the configuration file")
	fs.StringVar(&runs, "r", "", "Comma separated run numbers")
	fs.StringVar(&expected, "iexp", "", "Comma separated expected Ieq per run (uA); empty entries are estimated")
	fs.BoolVar(&o.Refetch, "refetch", false, "Acquire the HV archive again even when cached")
	fs.BoolVar(&o.Plots, "plots", false, "Render diagnostic plots")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	switch {
	case o.ConfigPath == "":
		err = errors.New("no configuration file provided")
	case runs == "":
		err = errors.New("no runs provided")
	default:
		o.Runs, err = parseRuns(runs, expected)
	}

	if err != nil {
		fs.Usage()
		return nil, err
	}
	return &o, nil
}

func parseRuns(runs, expected string) ([]RunRequest, error) {
	numbers := strings.Split(runs, ",")

	var values []string
	if expected != "" {
		values = strings.Split(expected, ",")
		if len(values) > len(numbers) {
			return nil, fmt.Errorf("%d expected values for %d runs", len(values), len(numbers))
		}
	}

	seen := make(map[int]struct{}, len(numbers))
	requests := make([]RunRequest, len(numbers))
	for i, s := range numbers {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid run number %q", s)
		}
		if _, ok := seen[n]; ok {
			return nil, fmt.Errorf("run %d given twice", n)
		}
		seen[n] = struct{}{}
		requests[i].Run = n

		if i >= len(values) || strings.TrimSpace(values[i]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(values[i]), 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid expected Ieq %q for run %d", values[i], n)
		}
		requests[i].Expected = &v
	}
	return requests, nil
}
