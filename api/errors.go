package api

import (
	"errors"
	"net/http"

	"churnguard/ml"
	"churnguard/schema"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	KindUnexpected Kind = iota
	KindInvalidRequest
	KindSchemaMismatch
	KindInvalidThreshold
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindSchemaMismatch:
		return "schema_mismatch"
	case KindInvalidThreshold:
		return "invalid_threshold"
	default:
		return "internal_error"
	}
}

// Classify maps an error returned by Service.Predict or DecodePredictRequest
// to its kind. Anything not recognised is unexpected.
func Classify(err error) Kind {
	var (
		mismatch  *schema.MismatchError
		duplicate *schema.DuplicateFieldError
		request   *RequestError
	)
	switch {
	case err == nil:
		return KindUnexpected
	case errors.As(err, &mismatch):
		return KindSchemaMismatch
	case errors.As(err, &duplicate), errors.As(err, &request), errors.Is(err, ml.ErrNonFiniteFeature):
		return KindInvalidRequest
	case errors.Is(err, ml.ErrInvalidThreshold):
		return KindInvalidThreshold
	default:
		return KindUnexpected
	}
}

// ErrorBody is the JSON error payload. Internal failures carry only the
// generic message.
type ErrorBody struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind"`
	Record  *int     `json:"record,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Extra   []string `json:"extra,omitempty"`
}

const internalErrorMessage = "internal server error"

// StatusFor returns the HTTP status and body for err.
func StatusFor(err error) (int, ErrorBody) {
	kind := Classify(err)
	switch kind {
	case KindSchemaMismatch:
		var mismatch *schema.MismatchError
		errors.As(err, &mismatch)
		record := mismatch.Record
		return http.StatusBadRequest, ErrorBody{
			Error:   "schema mismatch",
			Kind:    kind.String(),
			Record:  &record,
			Missing: mismatch.Missing,
			Extra:   mismatch.Extra,
		}
	case KindInvalidRequest:
		body := ErrorBody{Error: err.Error(), Kind: kind.String()}
		var request *RequestError
		if errors.As(err, &request) && request.Record >= 0 {
			record := request.Record
			body.Record = &record
		}
		var duplicate *schema.DuplicateFieldError
		if errors.As(err, &duplicate) {
			record := duplicate.Record
			body.Record = &record
		}
		var row *ml.RowError
		if errors.Is(err, ml.ErrNonFiniteFeature) && errors.As(err, &row) {
			record := row.Row
			body.Error = ml.ErrNonFiniteFeature.Error()
			body.Record = &record
		}
		return http.StatusBadRequest, body
	case KindInvalidThreshold:
		return http.StatusBadRequest, ErrorBody{Error: ml.ErrInvalidThreshold.Error(), Kind: kind.String()}
	case KindUnexpected:
		return http.StatusInternalServerError, ErrorBody{Error: internalErrorMessage, Kind: kind.String()}
	}
	return http.StatusInternalServerError, ErrorBody{Error: internalErrorMessage, Kind: KindUnexpected.String()}
}
