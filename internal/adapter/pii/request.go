package pii

import (
	"io"
	"strings"

	"github.com/V4T54L/faultline/internal/domain"
)

// FieldCollection is a name/value collection read from the hosting layer.
type FieldCollection interface {
	// Names lists the field names. An error means the whole collection is unreadable.
	Names() ([]string, error)
	// Value returns the value for name. The hosting layer may reject a value
	// as unsafe with a *ValidationError.
	Value(name string) (string, error)
}

// RequestContext is the raw request a fault happened in.
type RequestContext interface {
	Host() string
	Path() string
	Method() string
	ContentType() string
	// RemoteAddr is the peer address reported by the transport layer.
	RemoteAddr() string
	Headers() FieldCollection
	QueryString() FieldCollection
	Form() FieldCollection
	ServerVariables() FieldCollection
	Cookies() ([]domain.Cookie, error)
	Body() (io.Reader, error)
}

// ValidationError is returned by a FieldCollection when the hosting layer
// refuses to hand out a value, e.g. because it contains markup. Message
// quotes the offending value.
type ValidationError struct {
	Name    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IgnorePredicates decide, per field group, which names are left out of a
// snapshot. A nil predicate excludes nothing.
type IgnorePredicates struct {
	Header         func(name string) bool
	Form           func(name string) bool
	Cookie         func(name string) bool
	ServerVariable func(name string) bool
}

// IgnoreNames returns a case-insensitive predicate matching the given names.
// A name ending in "*" matches every name with that prefix. Blank entries
// are skipped.
func IgnoreNames(names ...string) func(string) bool {
	exact := make(map[string]struct{}, len(names))
	var prefixes []string
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if strings.HasSuffix(n, "*") {
			prefixes = append(prefixes, strings.TrimSuffix(n, "*"))
			continue
		}
		exact[n] = struct{}{}
	}
	if len(exact) == 0 && len(prefixes) == 0 {
		return nil
	}
	return func(name string) bool {
		name = strings.ToLower(name)
		if _, ok := exact[name]; ok {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
}
