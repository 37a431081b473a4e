// Package handoff carries a generation request from the documentation service
// to the code-generation service: the JSON wire codec, a retrying client and a
// transport-agnostic server.
package handoff

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"docforge/internal/domain/pipeline"
)

// wireRecord is one json_data value.
type wireRecord struct {
	Body   string          `json:"body"`
	Status pipeline.Status `json:"status"`
	Error  string          `json:"error,omitempty"`
}

// Documentation is a record set in wire form: a JSON object keyed by unit
// name whose key order is the record order.
type Documentation pipeline.RecordSet

// MarshalJSON writes records as an object in record order.
func (d Documentation) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rec := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(rec.UnitName)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(wireRecord{Body: rec.Body, Status: rec.Status, Error: rec.Error})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object keeping key order. Duplicate keys are kept so
// set validation can report them.
func (d *Documentation) UnmarshalJSON(data []byte) error {
	var records pipeline.RecordSet
	err := decodeOrderedObject(data, func(unit string, raw json.RawMessage) error {
		var rec wireRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("unit %q: %w", unit, err)
		}
		records = append(records, pipeline.DocumentationRecord{
			UnitName: unit,
			Body:     rec.Body,
			Status:   rec.Status,
			Error:    rec.Error,
		})
		return nil
	})
	if err != nil {
		return err
	}
	*d = Documentation(records)
	return nil
}

// decodeOrderedObject walks a JSON object and calls fn for each member in
// document order. A JSON null is an empty object.
func decodeOrderedObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

type wireRequest struct {
	Credential    string        `json:"credential"`
	JSONData      Documentation `json:"json_data"`
	GenerateTests bool          `json:"generate_tests"`
}

// EncodeRequest serializes a generation request.
func EncodeRequest(req pipeline.GenerationRequest) ([]byte, error) {
	return json.Marshal(wireRequest{
		Credential:    req.Credential,
		JSONData:      Documentation(req.Records),
		GenerateTests: req.GenerateTests,
	})
}

// DecodeRequest parses a request body. Shape errors are ErrMalformedPayload;
// invariants are left to GenerationRequest.Validate. An absent generate_tests
// is false.
func DecodeRequest(data []byte) (pipeline.GenerationRequest, error) {
	var wire wireRequest
	if err := json.Unmarshal(data, &wire); err != nil {
		return pipeline.GenerationRequest{}, fmt.Errorf("%w: %v", pipeline.ErrMalformedPayload, err)
	}
	return pipeline.GenerationRequest{
		Credential:    wire.Credential,
		Records:       pipeline.RecordSet(wire.JSONData),
		GenerateTests: wire.GenerateTests,
	}, nil
}

type wireArtifact struct {
	UnitName string                `json:"unit_name"`
	Kind     pipeline.ArtifactKind `json:"kind"`
	Body     string                `json:"body"`
	Status   pipeline.Status       `json:"status"`
	Error    string                `json:"error,omitempty"`
}

type wireResponse struct {
	Partial   bool           `json:"partial"`
	Artifacts []wireArtifact `json:"artifacts"`
}

// EncodeResponse serializes a successful result.
func EncodeResponse(bundle pipeline.ResultBundle) ([]byte, error) {
	wire := wireResponse{Partial: bundle.Partial, Artifacts: make([]wireArtifact, len(bundle.Artifacts))}
	for i, a := range bundle.Artifacts {
		wire.Artifacts[i] = wireArtifact{UnitName: a.UnitName, Kind: a.Kind, Body: a.Body, Status: a.Status, Error: a.Error}
	}
	return json.Marshal(wire)
}

// DecodeResponse parses a successful result and checks artifact kinds and
// statuses.
func DecodeResponse(data []byte) (pipeline.ResultBundle, error) {
	var wire wireResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return pipeline.ResultBundle{}, fmt.Errorf("decode response: %w", err)
	}
	bundle := pipeline.ResultBundle{Partial: wire.Partial, Artifacts: make([]pipeline.CodeArtifact, len(wire.Artifacts))}
	for i, a := range wire.Artifacts {
		if !a.Kind.Valid() || !a.Status.Valid() {
			return pipeline.ResultBundle{}, fmt.Errorf("decode response: artifact %d has kind %q status %q", i, a.Kind, a.Status)
		}
		bundle.Artifacts[i] = pipeline.CodeArtifact{UnitName: a.UnitName, Kind: a.Kind, Body: a.Body, Status: a.Status, Error: a.Error}
	}
	return bundle, nil
}

// ErrorKind names a structured error response.
type ErrorKind string

const (
	KindInvalidCredential ErrorKind = "InvalidCredential"
	KindMalformedPayload  ErrorKind = "MalformedPayload"
	KindEmptyRecordSet    ErrorKind = "EmptyRecordSet"
	// KindInternal covers failures that are not the caller's fault. The
	// request may already have consumed generation calls, so clients do not
	// retry it.
	KindInternal ErrorKind = "Internal"
)

// ErrorResponse is the structured error body.
type ErrorResponse struct {
	Kind    ErrorKind `json:"error_kind"`
	Message string    `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap maps the kind back to its domain error.
func (e *ErrorResponse) Unwrap() error {
	switch e.Kind {
	case KindInvalidCredential:
		return pipeline.ErrInvalidCredential
	case KindMalformedPayload:
		return pipeline.ErrMalformedPayload
	case KindEmptyRecordSet:
		return pipeline.ErrEmptyRecordSet
	default:
		return nil
	}
}

// Known reports whether the kind is one of the caller-error kinds.
func (k ErrorKind) Known() bool {
	switch k {
	case KindInvalidCredential, KindMalformedPayload, KindEmptyRecordSet:
		return true
	}
	return false
}

// HTTPStatus is the status code that accompanies the kind.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidCredential:
		return http.StatusUnauthorized
	case KindMalformedPayload:
		return http.StatusBadRequest
	case KindEmptyRecordSet:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse maps err to a structured error response.
func NewErrorResponse(err error) *ErrorResponse {
	var existing *ErrorResponse
	if errors.As(err, &existing) {
		return existing
	}
	switch {
	case errors.Is(err, pipeline.ErrInvalidCredential):
		return &ErrorResponse{Kind: KindInvalidCredential, Message: err.Error()}
	case errors.Is(err, pipeline.ErrMalformedPayload):
		return &ErrorResponse{Kind: KindMalformedPayload, Message: err.Error()}
	case errors.Is(err, pipeline.ErrEmptyRecordSet):
		return &ErrorResponse{Kind: KindEmptyRecordSet, Message: err.Error()}
	default:
		return &ErrorResponse{Kind: KindInternal, Message: "code generation failed"}
	}
}

// decodeErrorResponse returns the structured error in body, if it is one.
func decodeErrorResponse(body []byte) (*ErrorResponse, bool) {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, false
	}
	if !resp.Kind.Known() && resp.Kind != KindInternal {
		return nil, false
	}
	return &resp, true
}

// EncodeErrorResponse serializes a structured error.
func EncodeErrorResponse(resp *ErrorResponse) ([]byte, error) {
	return json.Marshal(resp)
}
