package media

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"soundcrate/internal/apperr"
)

const (
	// DefaultMaxFileBytes caps each uploaded file.
	DefaultMaxFileBytes int64 = 10 << 20

	maxFieldBytes = 1 << 20
	// maxFormBytes caps the text fields of one request together.
	maxFormBytes = 1 << 20
	// maxFileParts is the most distinct file fields any route accepts.
	maxFileParts = 2
	// partOverhead covers boundaries and part headers.
	partOverhead = 64 << 10
)

// MsgUnsupportedFormat is returned for parts outside the accepted types.
const MsgUnsupportedFormat = "Unsupported file format. Only audio or image files are allowed!"

var acceptedContentTypes = map[string]struct{}{
	"audio/mpeg": {},
	"audio/wav":  {},
	"image/jpeg": {},
	"image/png":  {},
	"image/jpg":  {},
}

// AcceptsContentType reports whether a file part with contentType is staged.
func AcceptsContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := acceptedContentTypes[strings.ToLower(mediaType)]
	return ok
}

// StagedFile is a multipart file part written to the upload directory.
type StagedFile struct {
	Field       string
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// Intake stages multipart file parts as uniquely named temp files.
type Intake struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

// NewIntake creates dir when missing. A non-positive maxBytes selects
// DefaultMaxFileBytes.
func NewIntake(dir string, maxBytes int64, logger *slog.Logger) (*Intake, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "soundcrate-uploads")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

// BodyLimit is the largest multipart body Parse reads: every accepted file at
// full size plus the text fields.
func (in *Intake) BodyLimit() int64 {
	return maxFileParts*in.maxBytes + maxFormBytes + partOverhead
}

// MsgBodyTooLarge is returned once a request body passes BodyLimit.
const MsgBodyTooLarge = "Request body is too large"

func bodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// Dir reports where files are staged.
func (in *Intake) Dir() string {
	return in.dir
}

// Form holds the text fields and staged files of one multipart request.
type Form struct {
	values    map[string]string
	textBytes int
	files     map[string]*StagedFile
	logger    *slog.Logger
}

// NewForm wraps already decoded values, as used for JSON bodies.
func NewForm(values map[string]string) *Form {
	if values == nil {
		values = map[string]string{}
	}
	return &Form{values: values, files: map[string]*StagedFile{}, logger: slog.Default()}
}

// IsMultipart reports whether r carries a multipart/form-data body.
func IsMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// Parse streams the multipart body of r. Only the first file of each field is
// kept. The whole body is capped at BodyLimit. On error every file staged so
// far is removed.
func (in *Intake) Parse(r *http.Request) (*Form, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, in.BodyLimit())
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Validation("Invalid multipart payload")
	}
	form := &Form{values: map[string]string{}, files: map[string]*StagedFile{}, logger: in.logger}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return form, nil
		}
		if err != nil {
			form.Cleanup()
			if bodyTooLarge(err) {
				return nil, apperr.Validation(MsgBodyTooLarge)
			}
			return nil, apperr.Validation("Invalid multipart payload")
		}
		if err := in.consume(form, part); err != nil {
			form.Cleanup()
			return nil, err
		}
	}
}

func (in *Intake) consume(form *Form, part *multipart.Part) error {
	defer part.Close()
	name := part.FormName()
	if name == "" {
		return nil
	}
	if part.FileName() == "" {
		payload, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
		if err != nil {
			if bodyTooLarge(err) {
				return apperr.Validation(MsgBodyTooLarge)
			}
			return apperr.Validation("Invalid multipart payload")
		}
		if len(payload) > maxFieldBytes {
			return apperr.Validation("Field %s is too large", name)
		}
		form.textBytes += len(payload)
		if form.textBytes > maxFormBytes {
			return apperr.Validation("Form fields are too large")
		}
		form.values[name] = string(payload)
		return nil
	}
	if _, exists := form.files[name]; exists {
		return nil
	}
	if len(form.files) >= maxFileParts {
		return apperr.Validation("Too many files")
	}
	contentType := part.Header.Get("Content-Type")
	if !AcceptsContentType(contentType) {
		return apperr.Validation(MsgUnsupportedFormat)
	}
	staged, err := in.stage(name, part)
	if err != nil {
		return err
	}
	staged.ContentType = contentType
	form.files[name] = staged
	return nil
}

func (in *Intake) stage(field string, part *multipart.Part) (*StagedFile, error) {
	pattern := sanitizeField(field) + "-*" + sanitizeExt(filepath.Ext(part.FileName()))
	tmp, err := os.CreateTemp(in.dir, pattern)
	if err != nil {
		return nil, apperr.Upstream(err, "Failed to stage upload")
	}
	written, err := io.Copy(tmp, io.LimitReader(part, in.maxBytes+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		if bodyTooLarge(err) {
			return nil, apperr.Validation(MsgBodyTooLarge)
		}
		return nil, apperr.Validation("Failed to read uploaded file")
	}
	if written > in.maxBytes {
		_ = os.Remove(tmp.Name())
		return nil, apperr.Validation("File %s exceeds the %d MB limit", field, in.maxBytes>>20)
	}
	return &StagedFile{
		Field:    field,
		Path:     tmp.Name(),
		Filename: filepath.Base(part.FileName()),
		Size:     written,
	}, nil
}

// Value returns the trimmed text field name.
func (f *Form) Value(name string) string {
	return strings.TrimSpace(f.values[name])
}

// Lookup returns the trimmed text field and whether it was sent at all.
func (f *Form) Lookup(name string) (string, bool) {
	value, ok := f.values[name]
	return strings.TrimSpace(value), ok
}

// Raw returns the untrimmed field, for values such as passwords where
// whitespace is significant.
func (f *Form) Raw(name string) (string, bool) {
	value, ok := f.values[name]
	return value, ok
}

// File returns the staged file for field.
func (f *Form) File(field string) (*StagedFile, bool) {
	file, ok := f.files[field]
	return file, ok
}

// Cleanup removes every staged file that still exists. Files already handed
// to the gateway are gone and are skipped silently.
func (f *Form) Cleanup() {
	if f == nil {
		return
	}
	for _, file := range f.files {
		if err := os.Remove(file.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("failed to remove staged upload", "path", file.Path, "error", err)
		}
	}
}

func sanitizeField(field string) string {
	var b strings.Builder
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
