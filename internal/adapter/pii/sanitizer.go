package pii

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/V4T54L/faultline/internal/domain"
)

const (
	// MaxFieldLength bounds query and form keys and values.
	MaxFieldLength = 256
	// MaxRawDataLength bounds the captured request body, in characters.
	MaxRawDataLength = 4096

	placeholderName  = "Values"
	placeholderValue = "Not able to be retrieved"
)

// serverVariableArtifacts are enumeration artifacts that duplicate other data.
var serverVariableArtifacts = []string{"ALL_HTTP", "HTTP_COOKIE", "ALL_RAW"}

// Sanitizer builds redacted request snapshots.
type Sanitizer struct {
	ignore IgnorePredicates
	logger *slog.Logger
}

// NewSanitizer creates a Sanitizer applying the given ignore predicates.
func NewSanitizer(ignore IgnorePredicates, logger *slog.Logger) *Sanitizer {
	return &Sanitizer{
		ignore: ignore,
		logger: logger.With("component", "sanitizer"),
	}
}

// Capture snapshots req. It never fails: unreadable parts are replaced by
// placeholders or left empty.
func (s *Sanitizer) Capture(req RequestContext) *domain.RequestSnapshot {
	if req == nil {
		return nil
	}

	snap := &domain.RequestSnapshot{
		HostName:   req.Host(),
		URL:        req.Path(),
		HTTPMethod: req.Method(),
		IPAddress:  ResolveIPAddress(req),
	}

	snap.QueryString = s.collect(req.QueryString(), s.ignore.Form, true)
	snap.Form = s.collect(req.Form(), s.ignore.Form, true)

	// Cookies are reported on their own.
	snap.Headers = s.collect(req.Headers(), s.ignore.Header, false).Without("Cookie")
	snap.Cookies = s.cookies(req)
	snap.Data = s.collect(req.ServerVariables(), s.ignore.ServerVariable, false).Without(serverVariableArtifacts...)

	if raw, ok := s.rawData(req); ok {
		snap.RawData = raw
	}
	return snap
}

func (s *Sanitizer) collect(c FieldCollection, ignore func(string) bool, truncate bool) domain.Fields {
	if c == nil {
		return domain.Fields{}
	}
	names, err := c.Names()
	if err != nil {
		s.logger.Debug("field collection unreadable, storing placeholder", "error", err)
		return domain.Fields{{Name: placeholderName, Value: placeholderValue}}
	}

	out := make(domain.Fields, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if ignore != nil && ignore(name) {
			continue
		}
		value, err := c.Value(name)
		if err != nil {
			value = quotedExcerpt(err.Error())
		}
		key := name
		if truncate {
			key = truncateRunes(key, MaxFieldLength)
			value = truncateRunes(value, MaxFieldLength)
			// The stored key is what gets filtered downstream.
			if key != name && ignore != nil && ignore(key) {
				continue
			}
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, domain.Field{Name: key, Value: value})
	}
	return out
}

func (s *Sanitizer) cookies(req RequestContext) []domain.Cookie {
	all, err := req.Cookies()
	if err != nil {
		s.logger.Debug("cookies unreadable, storing placeholder", "error", err)
		return []domain.Cookie{{Name: placeholderName, Value: placeholderValue}}
	}
	out := make([]domain.Cookie, 0, len(all))
	for _, c := range all {
		if s.ignore.Cookie != nil && s.ignore.Cookie(c.Name) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// rawData reads the start of the body for methods and content types that
// are likely to carry a payload worth showing.
func (s *Sanitizer) rawData(req RequestContext) (string, bool) {
	if strings.EqualFold(req.Method(), http.MethodGet) {
		return "", false
	}
	switch mediaType(req.ContentType()) {
	case "application/x-www-form-urlencoded", "text/html":
		return "", false
	}

	body, err := req.Body()
	if err != nil || body == nil {
		return "", false
	}
	// A rune is at most four bytes.
	data, err := io.ReadAll(io.LimitReader(body, MaxRawDataLength*utf8.UTFMax))
	if err != nil {
		return "", false
	}
	if len(data) == 0 {
		return "", false
	}
	return truncateRunes(string(data), MaxRawDataLength), true
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// quotedExcerpt returns the text between the first and the last double quote
// of msg, which is where the hosting layer echoes a rejected value.
func quotedExcerpt(msg string) string {
	first := strings.IndexByte(msg, '"')
	last := strings.LastIndexByte(msg, '"')
	if first == -1 || last <= first {
		return ""
	}
	return msg[first+1 : last]
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
