package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jward/rapor"
)

// openInput opens path for reading; "-" reads stdin.
func (a *app) openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(a.stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, usageError{fmt.Errorf("opening %s: %w", path, err)}
	}
	return f, nil
}

// readRows reads positional import rows from a JSON array of arrays or,
// for a .csv file, from CSV records. skipHeader drops the first CSV record.
func (a *app) readRows(path string, skipHeader bool) ([][]any, error) {
	r, err := a.openInput(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return rapor.DecodeRows(r)
	}
	return decodeCSVRows(r, skipHeader)
}

func decodeCSVRows(r io.Reader, skipHeader bool) ([][]any, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows [][]any
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, usageError{fmt.Errorf("reading csv: %w", err)}
		}
		if skipHeader {
			skipHeader = false
			continue
		}
		row := make([]any, len(rec))
		for i, cell := range rec {
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readText reads the whole input as trimmed text.
func (a *app) readText(path string) (string, error) {
	r, err := a.openInput(path)
	if err != nil {
		return "", err
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimSpace(string(b)), nil
}
