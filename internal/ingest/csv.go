package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// record is one CSV row keyed by header name.
type record map[string]string

// readTable parses a headed CSV file. Blank lines are skipped and every row
// must have the same number of fields as the header.
func readTable(path string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseTable(f)
}

func parseTable(r io.Reader) ([]record, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "reading csv header")
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var out []record
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, goerr.Wrap(err, "reading csv row")
		}
		rec := make(record, len(header))
		for i, name := range header {
			rec[name] = row[i]
		}
		out = append(out, rec)
	}
}
