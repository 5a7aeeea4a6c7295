package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"paycal/internal/services"
)

// HeaderUserID carries the user a request acts for. Authentication happens
// in front of this service.
const HeaderUserID = "X-User-ID"

const (
	maxBodyBytes   = 1 << 20
	maxBackupBytes = 16 << 20
	maxUserIDLen   = 128
)

// userIDFrom returns the sanitized X-User-ID header or fallback.
func userIDFrom(r *http.Request, fallback string) string {
	id := sanitizeInput(r.Header.Get(HeaderUserID))
	if id == "" || len(id) > maxUserIDLen {
		return fallback
	}
	return id
}

// parseBoolQuery reads a boolean query parameter. Absent or unparseable
// values yield def.
func parseBoolQuery(query url.Values, key string, def bool) bool {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// parseYear reads the year query parameter. Zero means absent.
func parseYear(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("year"))
	if v == "" {
		return 0, nil
	}
	y, err := strconv.Atoi(v)
	if err != nil || y < 1970 || y > 9999 {
		return 0, fmt.Errorf("%w: year %q", services.ErrInvalidInput, v)
	}
	return y, nil
}

// decodeJSON reads one JSON document of at most limit bytes into v.
// Unknown fields are ignored so clients can send back calendar rows as-is.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: body exceeds %d bytes", services.ErrInvalidInput, maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", services.ErrInvalidInput)
		}
		return fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", services.ErrInvalidInput)
	}
	return nil
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
