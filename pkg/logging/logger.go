// Package logging builds the process logger.
package logging

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger configured with datetime and caller information that
// writes warnings and errors to stderr and everything else to stdout. level
// is a zap level name such as "debug" or "info".
func New(level string) (*zap.Logger, error) {
	return NewWithWriters(level, os.Stdout, os.Stderr)
}

// NewWithWriters is New with explicit destinations
func NewWithWriters(level string, stdout, stderr io.Writer) (*zap.Logger, error) {
	threshold := zapcore.InfoLevel
	if level != "" {
		if err := threshold.UnmarshalText([]byte(level)); err != nil {
			return nil, errors.Wrapf(err, "parsing log level %q", level)
		}
	}

	isWarnLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.WarnLevel && lvl >= threshold
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl < zapcore.WarnLevel && lvl >= threshold
	})
	stdoutWriter := zapcore.Lock(zapcore.AddSync(stdout))
	stderrWriter := zapcore.Lock(zapcore.AddSync(stderr))

	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	encoder := zapcore.NewConsoleEncoder(config)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, stderrWriter, isWarnLevel),
		zapcore.NewCore(encoder, stdoutWriter, isInfoLevel),
	)
	return zap.New(core, zap.AddCaller()), nil
}
