package cli

import (
	"fmt"
	"io"
	"os"
)

// Migrator applies schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
}

// MigrateOptions defines the flags of the migrate command.
type MigrateOptions struct {
	// Direction is "up", "down" or "version".
	Direction string
	Steps     int
	Stdout    io.Writer
	Stderr    io.Writer
}

// MigrateCommand runs the requested migration direction and prints the
// resulting schema version.
func MigrateCommand(m Migrator, opts MigrateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	var err error
	switch opts.Direction {
	case "", "up":
		err = m.Up()
	case "down":
		if opts.Steps <= 0 {
			_, _ = fmt.Fprintln(opts.Stderr, "migrate down: --steps is required and must be positive")
			return 1
		}
		err = m.Down(opts.Steps)
	case "version":
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "migrate: unknown direction %q\n", opts.Direction)
		return 2
	}
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate %s: %v\n", opts.Direction, err)
		return 1
	}
	version, dirty, err := m.Version()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "migrate version: %v\n", err)
		return 1
	}
	if dirty {
		_, _ = fmt.Fprintf(opts.Stdout, "schema version %d (dirty)\n", version)
		return 3
	}
	_, _ = fmt.Fprintf(opts.Stdout, "schema version %d\n", version)
	return 0
}
