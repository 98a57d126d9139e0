package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/piconix/f1voice/internal/answer"
	"github.com/piconix/f1voice/internal/bias"
	"github.com/piconix/f1voice/internal/engine"
	"github.com/piconix/f1voice/internal/intent"
	"github.com/piconix/f1voice/internal/logging"
	"github.com/piconix/f1voice/internal/lookup"
)

// errorKinds maps pipeline errors to the names clients see. Every entry is
// reported with status 500.
var errorKinds = []struct {
	err  error
	name string
}{
	{intent.ErrEmptyQuestion, "EmptyQuestion"},
	{engine.ErrProvider, "ProviderError"},
	{engine.ErrMalformedProviderResponse, "MalformedProviderResponse"},
	{intent.ErrNoFunctionCall, "NoFunctionCall"},
	{lookup.ErrUnknownFunction, "UnknownFunction"},
	{lookup.ErrInvalidArguments, "InvalidArguments"},
	{lookup.ErrDriverNotFound, "DriverNotFound"},
	{lookup.ErrResultNotFound, "ResultNotFound"},
	{lookup.ErrNoDriverAtPosition, "NoDriverAtPosition"},
	{lookup.ErrNoConstructorAtPosition, "NoConstructorAtPosition"},
	{answer.ErrEmptyAnswer, "EmptyAnswer"},
	{bias.ErrNoValidArticles, "NoValidArticles"},
	{bias.ErrInvalidResponseFormat, "InvalidResponseFormat"},
}

// requestError is a problem with the inbound request itself.
type requestError struct {
	status int
	name   string
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, name: "BadRequest", msg: fmt.Sprintf(format, args...)}
}

func unauthorized(msg string) error {
	return &requestError{status: http.StatusUnauthorized, name: "Unauthorized", msg: msg}
}

type errorBody struct {
	Name    string `json:"name"`
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// classify returns the client-facing name, status and message for err.
// Internal detail such as provider bodies stays in the logs.
func classify(err error) (name string, status int, message string) {
	var re *requestError
	if errors.As(err, &re) {
		return re.name, re.status, re.msg
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name, http.StatusInternalServerError, k.err.Error()
		}
	}
	return "UnknownError", http.StatusInternalServerError, "internal server error"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	name, status, message := classify(err)
	path := r.Method + " " + r.URL.String()

	logging.From(r.Context()).Error(message,
		"path", path,
		"status", status,
		"name", name,
		"error", err,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{
		Name:    name,
		Code:    strconv.Itoa(status),
		Path:    path,
		Message: message,
	})
}
