package dataset

import (
	"compress/bzip2"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/temcen/goanalog/internal/engine"
)

// LoadMatrix reads a similarity matrix file. Files ending in .bz2 are decompressed on the fly.
func LoadMatrix(ctx context.Context, path string) (*engine.Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open similarity matrix: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".bz2") {
		r = bzip2.NewReader(f)
	}

	m, err := ParseMatrix(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("parse similarity matrix %s: %w", path, err)
	}
	return m, nil
}

// ParseMatrix reads a matrix written with the target ids as the index column and the source ids
// as the header. The first header cell names the index and is ignored. Empty cells are read as
// zero similarity.
func ParseMatrix(ctx context.Context, r io.Reader) (*engine.Matrix, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, errors.New("header needs an index column and at least one source column")
	}

	colIDs := make([]string, len(header)-1)
	for j, h := range header[1:] {
		colIDs[j] = strings.TrimSpace(h)
	}

	var (
		rowIDs []string
		values []float64
	)
	for line := 2; ; line++ {
		if line%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rowIDs = append(rowIDs, strings.TrimSpace(row[0]))
		for j, cell := range row[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				values = append(values, 0)
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %s: %w", line, colIDs[j], err)
			}
			values = append(values, v)
		}
	}

	return engine.NewMatrix(rowIDs, colIDs, values)
}
