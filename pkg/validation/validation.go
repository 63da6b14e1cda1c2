package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vinodismyname/kpidash/internal/kpi"
	"github.com/vinodismyname/kpidash/pkg/pagination"
)

var (
	v    *validator.Validate
	once sync.Once
)

var datasetExts = map[string]struct{}{
	".xlsx": {}, ".xlsm": {}, ".xltx": {}, ".xltm": {}, ".csv": {},
}

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		// Dataset file name or path must carry a supported extension.
		_ = v.RegisterValidation("dataset_ext", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return false
			}
			_, ok := datasetExts[strings.ToLower(filepath.Ext(s))]
			return ok
		})
		_ = v.RegisterValidation("dimension", func(fl validator.FieldLevel) bool {
			_, err := kpi.ParseGroupKey(fl.Field().String())
			return err == nil
		})
		// Empty is allowed; pair with omitempty.
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a user-facing error string
// suitable for MCP tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	err := Validator().Struct(s)
	if err == nil {
		return ""
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "VALIDATION: invalid inputs"
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "required_without", "required_without_all":
		return fmt.Sprintf("VALIDATION: %s is required (or supply %s)", field, strings.ToLower(fe.Param()))
	case "excluded_with":
		return fmt.Sprintf("VALIDATION: %s cannot be combined with %s", field, strings.ToLower(fe.Param()))
	case "dataset_ext":
		return "UNSUPPORTED_FORMAT: file must be .xlsx, .xlsm, .xltx, .xltm or .csv"
	case "dimension":
		return fmt.Sprintf("VALIDATION: %s must be one of %s", field, strings.Join(dimensionNames(), ", "))
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart pagination"
	case "base64":
		return fmt.Sprintf("VALIDATION: %s must be standard base64", field)
	case "min", "max", "gte", "lte":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}

func dimensionNames() []string {
	out := make([]string, 0, len(kpi.GroupKeys))
	for _, k := range kpi.GroupKeys {
		out = append(out, string(k))
	}
	return out
}
