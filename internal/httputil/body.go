package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/errors"
)

// DefaultBodyLimit bounds request bodies accepted by API handlers.
const DefaultBodyLimit = 1 << 20

// ReadAllWithLimit reads up to limit bytes and reports whether more remained.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	if limit <= 0 {
		return nil, false, fmt.Errorf("limit must be positive")
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

// ReadAllStrict reads r fully and fails if it exceeds limit bytes.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("body exceeds %d bytes", limit)
	}
	return data, nil
}

// DecodeJSON decodes a bounded JSON request body into v.
func DecodeJSON(r *http.Request, v interface{}) error {
	body, err := ReadAllStrict(r.Body, DefaultBodyLimit)
	if err != nil {
		return errors.BadRequest("request body too large")
	}
	if len(body) == 0 {
		return errors.BadRequest("request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.BadRequest("invalid JSON body")
	}
	return nil
}

// ParseAnyBody accepts either a JSON object or a urlencoded/multipart form
// and returns flat string values. Pages post forms, the widget posts JSON.
func ParseAnyBody(r *http.Request) (map[string]string, error) {
	out := make(map[string]string)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		body, err := ReadAllStrict(r.Body, DefaultBodyLimit)
		if err != nil {
			return nil, errors.BadRequest("request body too large")
		}
		if len(body) == 0 {
			return out, nil
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, errors.BadRequest("invalid JSON body")
		}
		for k, v := range raw {
			switch val := v.(type) {
			case nil:
			case string:
				out[k] = strings.TrimSpace(val)
			case float64:
				out[k] = strconv.FormatFloat(val, 'f', -1, 64)
			default:
				out[k] = fmt.Sprint(val)
			}
		}
		return out, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, DefaultBodyLimit)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(DefaultBodyLimit); err != nil {
			return nil, errors.BadRequest("invalid form body")
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, errors.BadRequest("invalid form body")
	}
	for k, vals := range r.Form {
		if len(vals) > 0 {
			out[k] = strings.TrimSpace(vals[0])
		}
	}
	return out, nil
}

// WantsJSON reports whether the caller is an API client rather than a browser form.
func WantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/json"
}

// ClientIP returns the first X-Forwarded-For hop or the remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx > 0 {
		host = host[:idx]
	}
	return host
}
