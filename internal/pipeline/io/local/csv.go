// Package local reads and writes pipeline inputs and outputs on the local
// filesystem.
package local

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Reve1io/BomProcessorBackend/internal/pipeline"
)

// ReadItemsCSV reads requested items from a CSV of `mpn[,quantity]` rows. A
// header row naming an "mpn" column is honored when present; otherwise column
// 0 is the identifier and column 1, when present, the quantity.
func ReadItemsCSV(r io.Reader) ([]pipeline.Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	mpnIdx, qtyIdx := 0, 1
	headerRow := false
	for i, col := range first {
		if strings.EqualFold(strings.TrimSpace(col), "mpn") {
			mpnIdx = i
			qtyIdx = -1
			headerRow = true
			break
		}
	}
	if headerRow {
		for i, col := range first {
			if strings.EqualFold(strings.TrimSpace(col), "quantity") {
				qtyIdx = i
				break
			}
		}
	}

	var items []pipeline.Item
	row := 1
	appendRow := func(rec []string) error {
		if mpnIdx >= len(rec) {
			return fmt.Errorf("row %d has %d columns, want at least %d", row, len(rec), mpnIdx+1)
		}
		item := pipeline.Item{MPN: strings.TrimSpace(rec[mpnIdx])}
		if item.MPN == "" {
			return fmt.Errorf("row %d: mpn is empty", row)
		}
		if qtyIdx >= 0 && qtyIdx < len(rec) {
			if raw := strings.TrimSpace(rec[qtyIdx]); raw != "" {
				qty, err := strconv.Atoi(raw)
				if err != nil {
					return fmt.Errorf("row %d: invalid quantity %q: %w", row, raw, err)
				}
				item.Quantity = &qty
			}
		}
		items = append(items, item)
		return nil
	}

	if !headerRow {
		if err := appendRow(first); err != nil {
			return nil, err
		}
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row++
		if err := appendRow(rec); err != nil {
			return nil, err
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("input has no items")
	}
	return items, nil
}

// WriteOutputJSON renders the run output as indented JSON.
func WriteOutputJSON(w io.Writer, out pipeline.Output) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
