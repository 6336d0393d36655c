package bookmaker

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/betenlace/affiliates/internal/domain"
)

// columnMap renames a feed's column names (compared case-insensitively) to
// canonical names.
type columnMap map[string]string

func (m columnMap) canonical(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	for feed, canon := range m {
		if strings.ToLower(feed) == name {
			return canon, true
		}
	}
	return "", false
}

// decodeCSV reads a comma separated report with a (possibly quoted) header
// row. Columns outside m are ignored; a canonical column in required that
// the header lacks is a schema mismatch.
func decodeCSV(source string, data []byte, m columnMap, required []string) ([]RawRow, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", source, err)
	}

	index := make(map[int]string, len(header))
	present := make(map[string]bool, len(header))
	for i, h := range header {
		if canon, ok := m.canonical(h); ok {
			index[i] = canon
			present[canon] = true
		}
	}
	for _, col := range required {
		if !present[col] {
			return nil, &domain.SchemaMismatchError{Source: source, Column: col}
		}
	}

	var rows []RawRow
	lineNum := 1
	for {
		lineNum++
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", source, lineNum, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		row := make(RawRow, len(index))
		for i, v := range rec {
			if canon, ok := index[i]; ok {
				row[canon] = strings.TrimSpace(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// decodeJSONRecords decodes data as an object, takes the array under key
// (or the document itself when key is empty) and renames each record's
// fields through m.
func decodeJSONRecords(source string, data []byte, key string, m columnMap, required []string) ([]RawRow, error) {
	var records []map[string]any
	if key == "" {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, &domain.UpstreamError{Source: source, Err: fmt.Errorf("decode: %w", err)}
		}
	} else {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, &domain.UpstreamError{Source: source, Err: fmt.Errorf("decode: %w", err)}
		}
		raw, ok := doc[key]
		if !ok {
			return nil, &domain.SchemaMismatchError{Source: source, Column: key}
		}
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, &domain.UpstreamError{Source: source, Err: fmt.Errorf("decode %s: %w", key, err)}
		}
	}

	rows := make([]RawRow, 0, len(records))
	for i, rec := range records {
		row := make(RawRow, len(rec))
		for k, v := range rec {
			if canon, ok := m.canonical(k); ok {
				row[canon] = v
			}
		}
		if i == 0 {
			for _, col := range required {
				if _, ok := row[col]; !ok {
					return nil, &domain.SchemaMismatchError{Source: source, Column: col}
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
