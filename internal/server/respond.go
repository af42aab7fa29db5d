package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	ferrors "github.com/figurechat/figurechat/internal/errors"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", slog.String("error", err.Error()))
	}
}

// writeError maps structured errors onto HTTP statuses. Validation details
// pass through so clients can render field-level messages.
func writeError(w http.ResponseWriter, err error) {
	var fe *ferrors.FigureError
	if !errors.As(err, &fe) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch fe.Code {
	case ferrors.ErrCodeFigureNotFound, ferrors.ErrCodeChunkNotFound:
		status = http.StatusNotFound
	case ferrors.ErrCodeFigureExists:
		status = http.StatusConflict
	case ferrors.ErrCodeFileTooLarge:
		status = http.StatusRequestEntityTooLarge
	case ferrors.ErrCodeUnsupportedFileType:
		status = http.StatusUnsupportedMediaType
	case ferrors.ErrCodeInvalidInput, ferrors.ErrCodeInvalidFigureID, ferrors.ErrCodeFieldTooLong:
		status = http.StatusBadRequest
	case ferrors.ErrCodeNetworkTimeout, ferrors.ErrCodeEmbeddingRemote, ferrors.ErrCodeLLMTransport:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("code", fe.Code),
			slog.String("error", fe.Error()))
	}

	writeJSON(w, status, errorBody{
		Error:   fe.Message,
		Code:    fe.Code,
		Details: fe.Details,
	})
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ferrors.Validation("invalid JSON body: " + err.Error())
	}
	return nil
}
