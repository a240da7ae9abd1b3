package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrPayloadTooLarge is returned when the request body exceeds the size limit
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrEmptyBody is returned when the request carries no body at all
var ErrEmptyBody = errors.New("empty body")

// ReadBodyStrict reads the request body and validates it's not empty.
// Bodies larger than limit fail with ErrPayloadTooLarge.
func ReadBodyStrict(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close() //nolint:errcheck // server request bodies are closed by net/http as well

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("%w (max %d bytes)", ErrPayloadTooLarge, limit)
		}
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

// WriteJSON writes a JSON response with proper headers
func WriteJSON(w http.ResponseWriter, code int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes {"error": msg} with the given status code
func WriteError(w http.ResponseWriter, code int, msg string) {
	_ = WriteJSON(w, code, map[string]string{"error": msg}) //nolint:errcheck // client went away
}
