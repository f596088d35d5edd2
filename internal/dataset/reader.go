// Package dataset streams a delimited tabular input into a model.Dataset,
// detecting the delimiter, header, and core type, and reporting duplicate
// record-identifier values discovered along the way.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/gbif-norway/bdq-agent/internal/model"
)

// Read parses raw input bytes (the decoded tabular attachment, per §1) into
// a model.Dataset plus a model.Stats summary gathered in the same
// streaming pass, and a list of non-fatal warnings (duplicate header
// columns dropped).
//
// Fails with model.ErrNoAttachment, model.ErrEmptyDataset,
// model.ErrNoCoreColumn, or model.ErrMalformedRow per §4.B.
func Read(input []byte, filename string) (*model.Dataset, model.Stats, []string, error) {
	if len(input) == 0 {
		return nil, model.Stats{}, nil, fmt.Errorf("%w: %s", model.ErrNoAttachment, filename)
	}

	headerLine, _, _ := bytes.Cut(input, []byte("\n"))
	delimiter := SniffDelimiter(string(headerLine))

	reader := csv.NewReader(bufio.NewReader(bytes.NewReader(input)))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1 // detect ragged rows explicitly rather than reshape them

	rawHeader, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, model.Stats{}, nil, fmt.Errorf("%w: %s", model.ErrEmptyDataset, filename)
		}

		return nil, model.Stats{}, nil, fmt.Errorf("%w: failed to read header: %v", model.ErrMalformedRow, err)
	}

	header, dropped := model.NewHeader(rawHeader)

	warnings := make([]string, 0, len(dropped))
	for _, d := range dropped {
		msg := fmt.Sprintf("duplicate header column %q dropped", d)
		warnings = append(warnings, msg)
		slog.Warn("dataset: duplicate header column dropped", slog.String("column", d))
	}

	coreType, ok := header.DetectCoreType()
	if !ok {
		return nil, model.Stats{}, warnings, fmt.Errorf("%w: %s", model.ErrNoCoreColumn, filename)
	}

	idColumn, _ := header.IDColumnFor(coreType)

	records := make([]model.Record, 0, 64) //nolint:mnd // initial capacity guess, grows as needed
	seenIDs := make(map[string]int)
	rowIndex := 0

	for {
		row, rerr := reader.Read()
		if rerr == io.EOF {
			break
		}

		if rerr != nil {
			return nil, model.Stats{}, warnings, fmt.Errorf("%w: row %d: %v", model.ErrMalformedRow, rowIndex, rerr)
		}

		values, ok := header.ProjectRow(row)
		if !ok {
			return nil, model.Stats{}, warnings, fmt.Errorf(
				"%w: row %d has %d fields, header row had %d",
				model.ErrMalformedRow, rowIndex, len(row), header.RawLen(),
			)
		}

		records = append(records, model.Record{RowIndex: rowIndex, Values: values})

		if idColumn != "" {
			if idx, ok := header.Resolve(idColumn); ok && idx < len(values) {
				seenIDs[values[idx]]++
			}
		}

		rowIndex++
	}

	if len(records) == 0 {
		return nil, model.Stats{}, warnings, fmt.Errorf("%w: %s", model.ErrEmptyDataset, filename)
	}

	stats := model.Stats{RowCount: len(records)}
	for id, count := range seenIDs {
		if count > 1 {
			stats.DuplicateIDCount++
			stats.DuplicateIDValues = append(stats.DuplicateIDValues, id)
		}
	}

	sort.Strings(stats.DuplicateIDValues)

	ds := &model.Dataset{
		Header:    header,
		Records:   records,
		Delimiter: delimiter,
		CoreType:  coreType,
		IDColumn:  idColumn,
	}

	return ds, stats, warnings, nil
}
