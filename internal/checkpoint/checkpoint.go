// Package checkpoint persists the in-progress table to a versioned output
// workbook next to the input.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shpitdev/movement-enricher/pkg/pipeline/core"
	"github.com/shpitdev/movement-enricher/pkg/pipeline/io/xlsx"
)

// Suffix is appended to the input base name to form the output name.
const Suffix = "_COM_DATAS"

// Cadence decides after which identifiers the table is persisted.
type Cadence struct {
	Every int
}

// Due reports whether a checkpoint follows identifier i (0-based) of total:
// after the first one, after every Every-th one, and after the last one.
func (c Cadence) Due(i, total int) bool {
	if i == 0 || i == total-1 {
		return true
	}
	return c.Every > 0 && (i+1)%c.Every == 0
}

// Resolve picks the first free output path for input:
// <dir>/<base>_COM_DATAS.xlsx, then <base>_COM_DATAS_1.xlsx, and so on.
func Resolve(input string) (string, error) {
	dir := filepath.Dir(input)
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))

	for n := 0; ; n++ {
		name := base + Suffix + ".xlsx"
		if n > 0 {
			name = fmt.Sprintf("%s%s_%d.xlsx", base, Suffix, n)
		}
		path := filepath.Join(dir, name)
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("check output path %s: %w", path, err)
		}
	}
}

// Workbook writes the checkpoints of one run. The output path is resolved on
// the first Store and reused by every later one.
type Workbook struct {
	input string
	path  string
}

var _ core.OutputAdapter[*xlsx.Table] = (*Workbook)(nil)

func NewWorkbook(input string) *Workbook {
	return &Workbook{input: input}
}

// Path returns the resolved output path, or "" before the first Store.
func (s *Workbook) Path() string {
	return s.path
}

// Store overwrites the output workbook with the full current table.
func (s *Workbook) Store(_ context.Context, t *xlsx.Table) error {
	if s.path == "" {
		path, err := Resolve(s.input)
		if err != nil {
			return err
		}
		s.path = path
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := xlsx.Write(tmp, t); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("checkpoint %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint %s: %w", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("checkpoint %s: %w", s.path, err)
	}
	return nil
}

// Hint returns an operator hint for a Store error, or "".
func Hint(err error) string {
	if errors.Is(err, fs.ErrPermission) {
		return "the output workbook may be open in another program; close it and the next checkpoint will retry"
	}
	return ""
}
