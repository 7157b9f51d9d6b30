package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs bearer tokens.
type TokenIssuer interface {
	IssueToken(subject string, roles []string) (string, error)
}

// TokenOptions defines the flags of the token command.
type TokenOptions struct {
	// Action is "issue" or "hash".
	Action  string
	Subject string
	Roles   []string
	// APIKey is the plain service key to hash for API_TOKEN_HASH.
	APIKey string
	Stdout io.Writer
	Stderr io.Writer
}

// TokenCommand issues a bearer token or hashes a service API key.
func TokenCommand(issuer TokenIssuer, opts TokenOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	switch opts.Action {
	case "issue":
		if issuer == nil {
			_, _ = fmt.Fprintln(opts.Stderr, "token issue: issuer not configured")
			return 1
		}
		token, err := issuer.IssueToken(opts.Subject, opts.Roles)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "token issue: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(opts.Stdout, token)
		return 0
	case "hash":
		hash, err := HashAPIKey(opts.APIKey)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "token hash: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintln(opts.Stdout, hash)
		return 0
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "token: unknown action %q (expected issue or hash)\n", opts.Action)
		return 2
	}
}

// HashAPIKey returns the bcrypt hash to configure as API_TOKEN_HASH.
func HashAPIKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if len(key) < 16 {
		return "", errors.New("api key must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SplitList parses a comma separated flag value.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
