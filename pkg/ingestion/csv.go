package ingestion

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/tm2health/platform/pkg/tm2"
)

// ParseCSV splits an uploaded file into its header and data rows.
// Row numbers count the header as line 1, so diagnostics line up with
// what an operator sees in the file. Structural problems (empty file,
// ragged rows, broken quoting, undecodable content) are batch errors.
func ParseCSV(r io.Reader) ([]string, []tm2.RawRow, error) {
	buffered := bufio.NewReader(r)
	if err := skipBOM(buffered); err != nil {
		return nil, nil, tm2.NewBatchError(fmt.Errorf("read upload: %w", err))
	}

	reader := csv.NewReader(buffered)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, tm2.NewBatchError(fmt.Errorf("file is empty"))
	}
	if err != nil {
		return nil, nil, tm2.NewBatchError(fmt.Errorf("parse csv header: %w", err))
	}
	for i, name := range header {
		header[i] = strings.TrimSpace(name)
	}

	var rows []tm2.RawRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, tm2.NewBatchError(fmt.Errorf("parse csv: %w", err))
		}
		line++

		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				fields[name] = record[i]
			}
		}
		rows = append(rows, tm2.RawRow{Number: line, Fields: fields})
	}
	return header, rows, nil
}

func skipBOM(r *bufio.Reader) error {
	ch, _, err := r.ReadRune()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	if ch != '\uFEFF' {
		return r.UnreadRune()
	}
	return nil
}
