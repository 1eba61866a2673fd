// Package logging builds the zerolog logger shared by every service binary.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// New returns a logger at the given level. When file is non-empty, output is
// appended to it in addition to stderr. The returned closer releases the file.
func New(service, level, file string) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var (
		w      io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		closer io.Closer = nopCloser{}
	)
	if file != "" {
		f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrapf(err, "open log file %s", file)
		}
		w = zerolog.MultiLevelWriter(w, f)
		closer = f
	}

	log := zerolog.New(w).Level(lvl).With().Timestamp().Str("service", service).Logger()
	return log, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
