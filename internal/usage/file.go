package usage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/temcen/goanalog/pkg/models"
)

// ReadCSV parses usage exported as "item_id,minutes" rows. A header row is optional.
func ReadCSV(r io.Reader) ([]models.UsageRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var records []models.UsageRecord
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read usage: %w", err)
		}

		id := strings.TrimSpace(row[0])
		minutes, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("usage line %d: minutes %q is not a number", line, row[1])
		}
		records = append(records, models.UsageRecord{ItemID: id, Minutes: minutes})
	}
	return records, nil
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string) ([]models.UsageRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open usage file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}
