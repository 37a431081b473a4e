package handoff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"docforge/internal/domain/pipeline"
	"docforge/internal/httpclient"

	"github.com/kaptinlin/jsonrepair"
)

// failedBodyPrefix marks a failed unit in a bare documentation map.
const failedBodyPrefix = "Error:"

// maxDocumentationBytes bounds an imported documentation file.
var maxDocumentationBytes int64 = 64 << 20

// WriteDocumentation exports records as an indented json_data object.
func WriteDocumentation(w io.Writer, records pipeline.RecordSet) error {
	raw, err := json.Marshal(Documentation(records))
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = w.Write(out.Bytes())
	return err
}

// LoadDocumentation reads an exported documentation file. Each value may be a
// record object or a bare Markdown string; a string starting with "Error:" is
// a failed unit. Malformed JSON is repaired once before giving up with
// ErrMalformedPayload. Files over 64 MiB are rejected as malformed.
func LoadDocumentation(r io.Reader) (pipeline.RecordSet, error) {
	data, err := httpclient.ReadAllWithLimit(r, maxDocumentationBytes)
	if err != nil {
		if httpclient.IsResponseTooLarge(err) {
			return nil, fmt.Errorf("%w: documentation file %v", pipeline.ErrMalformedPayload, err)
		}
		return nil, err
	}

	records, err := parseDocumentation(data)
	if err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrMalformedPayload, err)
		}
		records, err = parseDocumentation([]byte(repaired))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrMalformedPayload, err)
		}
	}
	if len(records) == 0 {
		return nil, pipeline.ErrEmptyRecordSet
	}
	if err := records.Validate(); err != nil {
		return nil, err
	}
	return records, nil
}

func parseDocumentation(data []byte) (pipeline.RecordSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	var records pipeline.RecordSet
	err := decodeOrderedObject(data, func(unit string, raw json.RawMessage) error {
		var body string
		if err := json.Unmarshal(raw, &body); err == nil {
			records = append(records, bareRecord(unit, body))
			return nil
		}
		var rec wireRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("unit %q: %w", unit, err)
		}
		records = append(records, pipeline.DocumentationRecord{UnitName: unit, Body: rec.Body, Status: rec.Status, Error: rec.Error})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func bareRecord(unit, body string) pipeline.DocumentationRecord {
	if msg, ok := strings.CutPrefix(strings.TrimSpace(body), failedBodyPrefix); ok {
		msg = strings.TrimSpace(msg)
		if msg == "" {
			msg = "documentation failed"
		}
		return pipeline.DocumentationRecord{UnitName: unit, Status: pipeline.StatusFailed, Error: msg}
	}
	return pipeline.DocumentationRecord{UnitName: unit, Body: body, Status: pipeline.StatusOK}
}
