package patterns

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ParamGetter reads a single parameter value, e.g. from SSM Parameter Store.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// LoadFile reads tables from a YAML file.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("patterns: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadParameter reads tables stored as a YAML document in a parameter.
func LoadParameter(ctx context.Context, getter ParamGetter, name string) (*Tables, error) {
	if getter == nil {
		return nil, errors.New("patterns: param getter must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("patterns: parameter name must not be empty")
	}
	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("patterns: load parameter: %w", err)
	}
	return Parse([]byte(raw))
}
