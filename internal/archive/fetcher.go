package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// RunPlaceholder is replaced by the run number in dump file patterns
const RunPlaceholder = "{run}"

// FileFetcher reads per-run JSON dumps from the filesystem. Pattern is a
// path that may contain RunPlaceholder, e.g. /data/dcs/HV_Run_{run}.json.
type FileFetcher struct {
	Pattern string
}

// Path returns the dump path of the run
func (f *FileFetcher) Path(run int) string {
	return strings.ReplaceAll(f.Pattern, RunPlaceholder, strconv.Itoa(run))
}

// Fetch reads and decodes the dump of the run. A missing file is ErrNotFound.
func (f *FileFetcher) Fetch(ctx context.Context, run int) (dump *DumpSource, err error) {
	if err = ctx.Err(); err != nil {
		return nil, err
	}

	path := f.Path(run)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: run %d: %s", ErrNotFound, run, path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening dump: %w", err)
	}
	defer func() {
		if cErr := file.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing dump: %w", cErr)
		}
	}()

	return DecodeDump(file, path)
}
