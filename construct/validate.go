package construct

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	envKeyPattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,255}$`)
)

// reservedEnv lists variables the Lambda runtime sets itself. A handler may
// not define them.
var reservedEnv = map[string]bool{
	"_HANDLER":                        true,
	"_X_AMZN_TRACE_ID":                true,
	"AWS_DEFAULT_REGION":              true,
	"AWS_REGION":                      true,
	"AWS_EXECUTION_ENV":               true,
	"AWS_LAMBDA_FUNCTION_NAME":        true,
	"AWS_LAMBDA_FUNCTION_MEMORY_SIZE": true,
	"AWS_LAMBDA_FUNCTION_VERSION":     true,
	"AWS_LAMBDA_INITIALIZATION_TYPE":  true,
	"AWS_LAMBDA_LOG_GROUP_NAME":       true,
	"AWS_LAMBDA_LOG_STREAM_NAME":      true,
	"AWS_ACCESS_KEY":                  true,
	"AWS_ACCESS_KEY_ID":               true,
	"AWS_SECRET_ACCESS_KEY":           true,
	"AWS_SESSION_TOKEN":               true,
	"AWS_LAMBDA_RUNTIME_API":          true,
	"LAMBDA_TASK_ROOT":                true,
	"LAMBDA_RUNTIME_DIR":              true,
}

// IsReservedEnv reports whether name is set by the Lambda runtime.
func IsReservedEnv(name string) bool {
	return reservedEnv[name]
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(v.RegisterValidation("envkey", func(fl validator.FieldLevel) bool {
		return envKeyPattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("unreserved", func(fl validator.FieldLevel) bool {
		return !IsReservedEnv(fl.Field().String())
	}))
	must(v.RegisterValidation("tablename", func(fl validator.FieldLevel) bool {
		return tableNamePattern.MatchString(fl.Field().String())
	}))
	return v
}

// validateStruct runs tag validation and reports the first failure as a
// ConfigurationError.
func validateStruct(unit string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigurationError{Unit: unit, Message: err.Error()}
	}
	e := verrs[0]
	return &ConfigurationError{Unit: unit, Field: fieldPath(e), Message: formatFieldError(e)}
}

// fieldPath drops the top-level struct name, e.g.
// "IngestionProps.PartitionKey.Name" becomes "PartitionKey.Name".
func fieldPath(e validator.FieldError) string {
	ns := e.StructNamespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatFieldError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", e.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "envkey":
		return fmt.Sprintf("%q is not a valid environment variable name", e.Value())
	case "unreserved":
		return fmt.Sprintf("%q is reserved by the Lambda runtime", e.Value())
	case "tablename":
		return "must be 3-255 characters of letters, digits, '_', '-' or '.'"
	default:
		return "is invalid"
	}
}

// validateKeys checks index names are unique and that an attribute shared
// by several keys has a single type. Keys must already carry defaults.
func validateKeys(unit string, pk KeyDef, indexes []IndexDef) error {
	types := map[string]AttributeType{pk.Name: pk.Type}
	check := func(field string, k KeyDef) error {
		if t, ok := types[k.Name]; ok && t != k.Type {
			return &ConfigurationError{
				Unit:    unit,
				Field:   field,
				Message: fmt.Sprintf("attribute %q is declared as both %s and %s", k.Name, t, k.Type),
			}
		}
		types[k.Name] = k.Type
		return nil
	}

	names := make(map[string]bool, len(indexes))
	for i, idx := range indexes {
		field := fmt.Sprintf("Indexes[%d]", i)
		if names[idx.Name] {
			return &ConfigurationError{
				Unit:    unit,
				Field:   field + ".Name",
				Message: fmt.Sprintf("duplicate index name %q", idx.Name),
			}
		}
		names[idx.Name] = true
		if err := check(field+".PartitionKey", idx.PartitionKey); err != nil {
			return err
		}
		if idx.SortKey != nil {
			if idx.SortKey.Name == idx.PartitionKey.Name {
				return &ConfigurationError{
					Unit:    unit,
					Field:   field + ".SortKey",
					Message: "sort key must differ from the partition key",
				}
			}
			if err := check(field+".SortKey", *idx.SortKey); err != nil {
				return err
			}
		}
	}
	return nil
}
