// Package parsing converts raw statement files into normalized
// transactions. One adapter exists per supported format; adapters must
// surface a typed ParseError instead of silently returning an empty list
// where content was expected.
package parsing

import (
	"context"
	"fmt"
	"strings"

	"github.com/finsight/statement-pipeline/internal/domain"
)

// ErrorKind classifies parse failures.
type ErrorKind string

const (
	// KindEmpty means the document yielded no transactions where
	// content was required.
	KindEmpty ErrorKind = "EMPTY"
	// KindUnreadable means the bytes could not be interpreted as the
	// declared format.
	KindUnreadable ErrorKind = "UNREADABLE"
	// KindWrongPassword means the document is encrypted and the
	// supplied password did not open it.
	KindWrongPassword ErrorKind = "WRONG_PASSWORD"
)

// ParseError is a typed parse failure.
type ParseError struct {
	Kind ErrorKind
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %s", e.Kind, e.Msg)
}

// Adapter parses one statement format into normalized transactions.
type Adapter interface {
	// Parse returns the extracted transactions or a *ParseError.
	Parse(ctx context.Context, data []byte, password string) ([]domain.Transaction, error)
}

// Registry maps declared MIME types to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds an adapter to a MIME type.
func (r *Registry) Register(mimeType string, a Adapter) {
	r.adapters[normalizeMIME(mimeType)] = a
}

// Lookup returns the adapter for the declared MIME type.
func (r *Registry) Lookup(mimeType string) (Adapter, error) {
	a, ok := r.adapters[normalizeMIME(mimeType)]
	if !ok {
		return nil, fmt.Errorf("unsupported file type: %s", mimeType)
	}
	return a, nil
}

func normalizeMIME(mimeType string) string {
	// Strip parameters such as "; charset=utf-8".
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
