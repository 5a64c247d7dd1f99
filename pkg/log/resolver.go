package log

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/mwantia/fabric/pkg/container"
)

var loggerServiceType = reflect.TypeOf((*LoggerService)(nil)).Elem()

// Resolve looks up the registered LoggerService and applies an optional name.
//
// Supported reference formats:
//   - "logger" resolves the base logger service
//   - "logger:<name>" resolves the base logger and calls Named(name)
//
// Matching on the "logger" prefix is case-insensitive.
func Resolve(ctx context.Context, sc *container.ServiceContainer, ref string) (LoggerService, error) {
	name, err := parseReference(ref)
	if err != nil {
		return nil, err
	}

	ok, resolved := sc.ResolveByType(ctx, loggerServiceType)
	if !ok {
		return nil, fmt.Errorf("failed to resolve '%s': no logger service registered", ref)
	}

	base, ok := resolved.(LoggerService)
	if !ok {
		return nil, fmt.Errorf("resolved service for '%s' is not a LoggerService", ref)
	}

	if name != "" {
		return base.Named(name), nil
	}
	return base, nil
}

// MustResolve is Resolve for a named component logger, falling back to fallback.Named(name)
// when the container holds no logger.
func MustResolve(ctx context.Context, sc *container.ServiceContainer, name string, fallback LoggerService) LoggerService {
	logger, err := Resolve(ctx, sc, "logger:"+name)
	if err != nil {
		return fallback.Named(name)
	}
	return logger
}

func parseReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if strings.EqualFold(ref, "logger") {
		return "", nil
	}
	if len(ref) > len("logger:") && strings.EqualFold(ref[:len("logger:")], "logger:") {
		return strings.TrimSpace(ref[len("logger:"):]), nil
	}
	return "", fmt.Errorf("unsupported logger reference '%s'", ref)
}
