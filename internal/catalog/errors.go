package catalog

import (
	"errors"
	"fmt"
)

// ErrConfig is the kind of every fatal catalog configuration failure.
// Use errors.Is(err, ErrConfig) to tell configuration errors apart from I/O
// failures.
var ErrConfig = errors.New("catalog configuration error")

// ConfigError describes a catalog configuration failure precisely enough to
// fix the offending file: the source path, the id involved and what is wrong.
type ConfigError struct {
	Source string
	ID     string
	Msg    string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	msg := ErrConfig.Error()
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.ID != "" {
		msg += fmt.Sprintf(" (%s)", e.ID)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func configErrorf(source, id, format string, args ...any) error {
	return &ConfigError{Source: source, ID: id, Msg: fmt.Sprintf(format, args...)}
}
