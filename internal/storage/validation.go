package storage

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"soundcrate/internal/apperr"
)

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

func paramsValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			if label := field.Tag.Get("label"); label != "" {
				return label
			}
			return field.Name
		})
		// length=lo:hi bounds the trimmed rune count.
		_ = v.RegisterValidation("length", func(fl validator.FieldLevel) bool {
			lo, hi, ok := parseLengthBounds(fl.Param())
			if !ok {
				return false
			}
			n := utf8.RuneCountInString(strings.TrimSpace(fl.Field().String()))
			return n >= lo && n <= hi
		})
		validate = v
	})
	return validate
}

func parseLengthBounds(param string) (int, int, bool) {
	loRaw, hiRaw, found := strings.Cut(param, ":")
	if !found {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(loRaw)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.Atoi(hiRaw)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// validateParams checks params against its validate tags. Missing fields are
// reported together before any bounds problem.
func validateParams(params any) error {
	err := paramsValidator().Struct(params)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate params: %w", err)
	}

	var missing []string
	var other string
	for _, fe := range fieldErrs {
		if isMissing(fe) {
			missing = append(missing, fe.Field())
			continue
		}
		if other == "" {
			other = describeFieldError(fe)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("%s", missingMessage(missing))
	}
	return apperr.Validation("%s", other)
}

func isMissing(fe validator.FieldError) bool {
	switch fe.Tag() {
	case "required":
		return true
	case "min":
		return fe.Kind() == reflect.Slice
	}
	return false
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "length":
		lo, hi, _ := parseLengthBounds(fe.Param())
		return fmt.Sprintf("%s must be between %d and %d characters", fe.Field(), lo, hi)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func missingMessage(fields []string) string {
	switch len(fields) {
	case 1:
		return fields[0] + " is required"
	case 2:
		return fields[0] + " and " + strings.ToLower(fields[1]) + " are required"
	}
	parts := make([]string, len(fields))
	for i, field := range fields {
		if i == 0 {
			parts[i] = field
			continue
		}
		parts[i] = strings.ToLower(field)
	}
	return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1] + " are required"
}

// Validate normalises p and checks required fields. Handlers call it before
// uploading media so a rejected request never reaches object storage.
func (p *CreateArtistParams) Validate() error {
	p.normalize()
	return validateParams(p)
}

// Validate normalises p and checks required fields and length bounds.
func (p *CreateAlbumParams) Validate() error {
	p.normalize()
	return validateParams(p)
}

type songMetadataCheck struct {
	Title    string `label:"Title" validate:"required"`
	Duration int    `label:"Duration" validate:"required,min=1"`
}

// ValidateMetadata checks the fields of p that do not depend on uploaded
// media, so a song rejected for its metadata never reaches object storage.
func (p *CreateSongParams) ValidateMetadata() error {
	return validateParams(&songMetadataCheck{Title: strings.TrimSpace(p.Title), Duration: p.Duration})
}
