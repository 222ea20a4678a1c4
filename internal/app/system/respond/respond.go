// internal/app/system/respond/respond.go
// Package respond writes the JSON API's success and error bodies.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/interviewhub/internal/app/system/apperr"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds request bodies read by Decode.
const MaxBodyBytes = 64 << 10

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     apperr.Code       `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as {"error":{"code","message"}}. Lifecycle errors keep
// their code and message; anything else is logged and reported as INTERNAL
// without detail.
func Error(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		JSON(w, ae.Code.HTTPStatus(), errorBody{Error: errorDetail{
			Code:     ae.Code,
			Message:  ae.Message,
			Metadata: ae.Metadata,
		}})
		return
	}

	log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	JSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
		Code:    apperr.CodeInternal,
		Message: "internal error",
	}})
}

// Decode reads a JSON body into v. Unknown fields, trailing data, and
// oversized bodies are INVALID_INPUT.
func Decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.InvalidInput("request body is empty")
		}
		return apperr.Wrap(apperr.CodeInvalidInput, "request body is not valid JSON", err)
	}
	if dec.More() {
		return apperr.InvalidInput("request body has trailing data")
	}
	return nil
}
