package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"soundcrate/internal/apperr"
	"soundcrate/internal/media"
	"soundcrate/internal/storage"
)

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// readForm decodes either a multipart form or a JSON object into a
// media.Form. JSON strings are unquoted; numbers, booleans, and arrays keep
// their JSON text so list fields parse the same way from both encodings.
// Callers must defer Cleanup on the returned form.
func (h *Handler) readForm(r *http.Request) (*media.Form, error) {
	if media.IsMultipart(r) {
		intake, err := h.intake()
		if err != nil {
			return nil, apperr.Upstream(err, "Failed to stage upload")
		}
		return intake.Parse(r)
	}

	var raw map[string]json.RawMessage
	if err := decodeJSON(r, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, apperr.Validation(msgBodyRequired)
	}
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		if text, ok := jsonText(value); ok {
			values[key] = text
		}
	}
	return media.NewForm(values), nil
}

func jsonText(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", false
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", false
		}
		return text, true
	}
	return string(trimmed), true
}

func optionalString(form *media.Form, name string) *string {
	value, ok := form.Lookup(name)
	if !ok {
		return nil
	}
	return &value
}

func parseBoolField(form *media.Form, name string) (*bool, error) {
	value, ok := form.Lookup(name)
	if !ok || value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return nil, apperr.Validation("%s must be true or false", name)
	}
	return &parsed, nil
}

func parseIntField(form *media.Form, name string) (*int, error) {
	value, ok := form.Lookup(name)
	if !ok || value == "" {
		return nil, nil
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return &parsed, nil
	}
	// Integral floats such as 215.0 come from some JSON encoders.
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return nil, apperr.Validation("%s must be a whole number", name)
	}
	parsed := int(f)
	return &parsed, nil
}

func parseDateField(form *media.Form, name string) (*time.Time, error) {
	value, ok := form.Lookup(name)
	if !ok || value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			parsed = parsed.UTC()
			return &parsed, nil
		}
	}
	return nil, apperr.Validation("%s must be a date such as 2024-05-01", name)
}

// parseListField accepts a JSON array of strings or a comma separated list.
func parseListField(form *media.Form, name string) (*[]string, error) {
	value, ok := form.Lookup(name)
	if !ok {
		return nil, nil
	}
	var list []string
	if strings.HasPrefix(value, "[") {
		if err := json.Unmarshal([]byte(value), &list); err != nil {
			return nil, apperr.Validation("%s must be a list of strings", name)
		}
		for i := range list {
			list[i] = strings.TrimSpace(list[i])
		}
	} else {
		list = storage.SplitGenres(value)
	}
	return &list, nil
}

// uploadFile hands the staged file for field to the media gateway. ok is false
// when the request carried no such file. Upload failures are reported with
// failure as the client message.
func (h *Handler) uploadFile(ctx context.Context, form *media.Form, field, folder, failure string) (string, bool, error) {
	file, ok := form.File(field)
	if !ok {
		return "", false, nil
	}
	if h.Media == nil {
		return "", true, apperr.Upstream(errors.New("media uploader not configured"), "%s", failure)
	}
	asset, err := h.Media.Upload(ctx, file.Path, folder)
	if err != nil {
		return "", true, apperr.Wrap(apperr.KindUpstream, err, failure)
	}
	return asset.URL, true, nil
}
