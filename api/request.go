// Package api is the request boundary of the prediction service: it decodes
// and structurally validates batches, runs alignment and inference, and maps
// failures to client or server errors.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"churnguard/schema"
)

// PredictRequest is a decoded batch. Field order inside each record is the
// order the caller sent.
type PredictRequest struct {
	Records   []schema.Record
	Threshold *float64
}

// PredictResponse carries one entry per input record, in input order.
type PredictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	Predictions   []int     `json:"predictions"`
}

// RequestError is a structurally invalid request.
type RequestError struct {
	Record int // -1 when the problem is not tied to a record
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	switch {
	case e.Record >= 0 && e.Field != "":
		return fmt.Sprintf("record %d field %q: %s", e.Record, e.Field, e.Reason)
	case e.Record >= 0:
		return fmt.Sprintf("record %d: %s", e.Record, e.Reason)
	default:
		return e.Reason
	}
}

func requestError(format string, args ...interface{}) *RequestError {
	return &RequestError{Record: -1, Reason: fmt.Sprintf(format, args...)}
}

// DecodePredictRequest parses {"records": [...], "threshold": n}. It rejects
// unknown top-level keys, duplicate keys within a record and any value that is
// not a JSON number.
func DecodePredictRequest(r io.Reader) (*PredictRequest, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, requestError("request body must be a JSON object")
	}

	req := &PredictRequest{}
	seenRecords := false
	seenKeys := map[string]bool{}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if seenKeys[key] {
			return nil, requestError("duplicate key %q", key)
		}
		seenKeys[key] = true

		switch key {
		case "records":
			records, err := decodeRecords(dec)
			if err != nil {
				return nil, err
			}
			req.Records = records
			seenRecords = true
		case "threshold":
			value, err := decodeNumber(dec)
			if err != nil {
				return nil, requestError("threshold must be a number")
			}
			req.Threshold = &value
		default:
			return nil, requestError("unknown field %q", key)
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, requestError("malformed request body")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, requestError("request body must contain a single JSON object")
	}
	if !seenRecords {
		return nil, requestError("records is required")
	}
	return req, nil
}

func decodeRecords(dec *json.Decoder) ([]schema.Record, error) {
	if err := expectDelim(dec, '['); err != nil {
		return nil, requestError("records must be an array")
	}
	records := make([]schema.Record, 0)
	for dec.More() {
		index := len(records)
		rec, err := decodeRecord(dec, index)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, requestError("malformed records array")
	}
	return records, nil
}

func decodeRecord(dec *json.Decoder, index int) (schema.Record, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, &RequestError{Record: index, Reason: "record must be a JSON object"}
	}
	rec := schema.Record{}
	seen := map[string]bool{}
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, &RequestError{Record: index, Field: name, Reason: "field given more than once"}
		}
		seen[name] = true
		value, err := decodeNumber(dec)
		if err != nil {
			return nil, &RequestError{Record: index, Field: name, Reason: "value must be a number"}
		}
		rec = append(rec, schema.Field{Name: name, Value: value})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, &RequestError{Record: index, Reason: "malformed record"}
	}
	return rec, nil
}

// decodeNumber consumes one JSON value and accepts it only if it is a number.
// Nested values are consumed whole so the error is reported for this field.
func decodeNumber(dec *json.Decoder) (float64, error) {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return 0, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return 0, errors.New("not a number")
	}
	return strconv.ParseFloat(string(raw), 64)
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", requestError("malformed request body")
	}
	key, ok := tok.(string)
	if !ok {
		return "", requestError("malformed request body")
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q", want)
	}
	return nil
}
