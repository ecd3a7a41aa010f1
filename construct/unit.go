package construct

import (
	"context"
	"regexp"
)

var unitIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// Plan is a validated unit waiting for its handler code to be packaged.
type Plan interface {
	ID() string
	CodeSpec() CodeSpec
	Runtime() Runtime
}

// PackagePlan packages the handler code of p. Failures are reported as
// PackagingError.
func PackagePlan(ctx context.Context, pkg Packager, p Plan) (CodeRef, error) {
	if err := ctx.Err(); err != nil {
		return CodeRef{}, packaged(p.ID(), p.CodeSpec(), err)
	}
	ref, err := pkg.Package(ctx, p.CodeSpec(), p.Runtime())
	if err != nil {
		return CodeRef{}, packaged(p.ID(), p.CodeSpec(), err)
	}
	return ref, nil
}

func validateUnitID(id string) error {
	if id == "" {
		return &ConfigurationError{Field: "ID", Message: "unit id is required"}
	}
	if !unitIDPattern.MatchString(id) {
		return &ConfigurationError{Unit: id, Field: "ID", Message: "must start with a letter and contain only letters, digits, '_' or '-'"}
	}
	return nil
}

// mergeEnv builds a handler environment from static variables plus the
// resolved table name under key. On collision the resolved name wins.
func mergeEnv(static map[string]string, key EnvKey, tableName any) map[string]any {
	env := make(map[string]any, len(static)+1)
	for k, v := range static {
		env[k] = v
	}
	env[string(key)] = tableName
	return env
}
