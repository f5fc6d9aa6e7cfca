package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

var (
	ErrInvalidJSON          = errors.New("invalid JSON")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// JSON decodes a request body into v. The body must be application/json;
// unknown fields are rejected to catch client typos early.
func JSON(r *http.Request, v any) error {
	mediaType := r.Header.Get("Content-Type")
	if mediaType != "" {
		parsed, _, err := mime.ParseMediaType(mediaType)
		if err != nil || parsed != "application/json" {
			return fmt.Errorf("%w: got %q, expected application/json", ErrUnsupportedMediaType, mediaType)
		}
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", ErrInvalidJSON)
		}
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
	}
	return nil
}
