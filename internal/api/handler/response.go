package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vidproxy/vidproxy/internal/api/middleware"
	"github.com/vidproxy/vidproxy/internal/domain/model"
)

// HeaderCFErrorCode surfaces the upstream numeric error code to clients.
const HeaderCFErrorCode = "X-CF-Error-Code"

func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

type ErrorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error renders the JSON error envelope.
func Error(w http.ResponseWriter, r *http.Request, status int, kind, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorBody{
			Kind:      kind,
			Message:   message,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	})
}

// RenderError maps a pipeline error to its HTTP representation. Typed errors
// keep their status and kind; anything else becomes an opaque 500.
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	var terr *model.TransformError
	if errors.As(err, &terr) {
		if terr.Code > 0 {
			w.Header().Set(HeaderCFErrorCode, strconv.Itoa(terr.Code))
		}
		Error(w, r, terr.Status, string(model.KindTransformFailed), terr.Message)
		return
	}

	var gerr *model.GatewayError
	if errors.As(err, &gerr) {
		if gerr.Code > 0 {
			w.Header().Set(HeaderCFErrorCode, strconv.Itoa(gerr.Code))
		}
		Error(w, r, gerr.HTTPStatus(), string(gerr.Kind), gerr.Message)
		return
	}

	Error(w, r, http.StatusInternalServerError, string(model.KindInternal), "internal server error")
}
