package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/guttosm/stockmeter/internal/domain/models"
	"github.com/guttosm/stockmeter/internal/storage"
	"github.com/shopspring/decimal"
)

// expectedHeaders enforces strict column ordering for bar files. A header
// that differs in order or count fails the file.
var expectedHeaders = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// parseAndPersistFile opens, validates, parses, and copies one bar file into
// load in batches. Nothing is visible until the caller commits load.
//
// It fails on:
//   - a header not matching expectedHeaders
//   - a row with the wrong column count, a bad date or a malformed number
//   - unrecoverable I/O or database errors
//
// Empty price or volume cells are stored as NULL.
func parseAndPersistFile(ctx context.Context, path string, load storage.BarsLoad, batch int) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // checked explicitly for a better message
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	if len(header) != len(expectedHeaders) {
		return 0, fmt.Errorf("invalid header length: expected %d, got %d", len(expectedHeaders), len(header))
	}
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) != expectedHeaders[i] {
			return 0, fmt.Errorf("invalid header at col %d: expected %q, got %q", i+1, expectedHeaders[i], h)
		}
	}

	buf := make([]models.Bar, 0, batch)
	lineNumber := 1
	total := 0

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if err := load.Insert(ctx, buf); err != nil {
			return err
		}
		buf = buf[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read line after %d: %w", lineNumber, err)
		}
		lineNumber++

		if len(rec) != len(expectedHeaders) {
			return 0, fmt.Errorf("invalid column count on line %d: expected %d got %d", lineNumber, len(expectedHeaders), len(rec))
		}

		bar, err := recordToBar(rec)
		if err != nil {
			return 0, fmt.Errorf("line %d: %w", lineNumber, err)
		}

		buf = append(buf, bar)
		total++
		if len(buf) >= batch {
			if err := flush(); err != nil {
				return 0, fmt.Errorf("flush batch ending line %d: %w", lineNumber, err)
			}
		}
	}

	if err := flush(); err != nil {
		return 0, fmt.Errorf("final flush: %w", err)
	}
	return total, nil
}

// recordToBar converts one validated record into a models.Bar.
//
// Column order:
//
//	0 Date    → Date ("2006-01-02", required)
//	1 Open    → Open (decimal, empty → NULL)
//	2 High    → High
//	3 Low     → Low
//	4 Close   → Close
//	5 Volume  → Volume (whole number, empty → NULL)
func recordToBar(rec []string) (models.Bar, error) {
	var b models.Bar

	d, err := time.Parse("2006-01-02", strings.TrimSpace(rec[0]))
	if err != nil {
		return b, fmt.Errorf("invalid Date: %v", err)
	}
	b.Date = d

	prices := []*decimal.NullDecimal{&b.Open, &b.High, &b.Low, &b.Close}
	for i, dst := range prices {
		v, err := nullDecimal(rec[i+1])
		if err != nil {
			return b, fmt.Errorf("invalid %s: %v", expectedHeaders[i+1], err)
		}
		*dst = v
	}

	if s := strings.TrimSpace(rec[5]); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return b, fmt.Errorf("invalid Volume: %v", err)
		}
		if n < 0 {
			return b, fmt.Errorf("invalid Volume: negative %d", n)
		}
		b.Volume = decimal.NewNullDecimal(decimal.NewFromInt(n))
	}

	return b, nil
}

func nullDecimal(raw string) (decimal.NullDecimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}
