package pii

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/V4T54L/faultline/internal/domain"
)

// HTTPRequest adapts a *http.Request to RequestContext.
type HTTPRequest struct {
	r *http.Request

	varsOnce sync.Once
	vars     domain.Fields
}

// NewHTTPRequest wraps r.
func NewHTTPRequest(r *http.Request) *HTTPRequest {
	return &HTTPRequest{r: r}
}

func (h *HTTPRequest) Host() string {
	if host := h.r.URL.Hostname(); host != "" {
		return host
	}
	if host, _, err := net.SplitHostPort(h.r.Host); err == nil {
		return host
	}
	return h.r.Host
}

func (h *HTTPRequest) Path() string        { return h.r.URL.Path }
func (h *HTTPRequest) Method() string      { return h.r.Method }
func (h *HTTPRequest) ContentType() string { return h.r.Header.Get("Content-Type") }
func (h *HTTPRequest) RemoteAddr() string  { return h.r.RemoteAddr }

func (h *HTTPRequest) Headers() FieldCollection {
	return headerFields(h.r.Header)
}

func (h *HTTPRequest) QueryString() FieldCollection {
	query, err := parseQuery(h.r.URL.RawQuery)
	if err != nil {
		return errCollection{err: err}
	}
	return query
}

func (h *HTTPRequest) Form() FieldCollection {
	if h.r.PostForm == nil {
		if err := h.r.ParseForm(); err != nil {
			return errCollection{err: err}
		}
	}
	values := make(map[string][]string, len(h.r.PostForm))
	for k, v := range h.r.PostForm {
		values[k] = v
	}
	if h.r.MultipartForm != nil {
		for k, v := range h.r.MultipartForm.Value {
			values[k] = append(values[k], v...)
		}
	}
	return valuesFields(values)
}

func (h *HTTPRequest) ServerVariables() FieldCollection {
	h.varsOnce.Do(func() { h.vars = serverVariables(h.r) })
	return fieldsCollection(h.vars)
}

func (h *HTTPRequest) Cookies() ([]domain.Cookie, error) {
	cookies := h.r.Cookies()
	out := make([]domain.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, domain.Cookie{Name: c.Name, Value: c.Value})
	}
	return out, nil
}

// Body returns the request body. When the request went through RecordBody,
// bytes the handler already consumed are replayed first.
func (h *HTTPRequest) Body() (io.Reader, error) {
	if rec, ok := h.r.Context().Value(recorderKey{}).(*bodyRecorder); ok {
		return rec.replay(), nil
	}
	if h.r.Body == nil || h.r.Body == http.NoBody {
		return nil, nil
	}
	return h.r.Body, nil
}

type recorderKey struct{}

// bodyRecorder keeps a copy of the first bytes read from a request body.
type bodyRecorder struct {
	io.ReadCloser
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func (b *bodyRecorder) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.mu.Lock()
		if room := b.limit - b.buf.Len(); room > 0 {
			b.buf.Write(p[:min(n, room)])
		}
		b.mu.Unlock()
	}
	return n, err
}

func (b *bodyRecorder) replay() io.Reader {
	b.mu.Lock()
	seen := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()
	return io.MultiReader(bytes.NewReader(seen), b.ReadCloser)
}

// RecordBody returns a shallow copy of r whose body keeps the bytes the
// handler reads, so a fault captured after the handler consumed the body
// still shows it.
func RecordBody(r *http.Request) *http.Request {
	if r.Body == nil || r.Body == http.NoBody {
		return r
	}
	rec := &bodyRecorder{ReadCloser: r.Body, limit: MaxRawDataLength * utf8.UTFMax}
	r2 := r.WithContext(context.WithValue(r.Context(), recorderKey{}, rec))
	r2.Body = rec
	return r2
}

// fieldsCollection serves a precomputed ordered mapping.
type fieldsCollection domain.Fields

func (f fieldsCollection) Names() ([]string, error) {
	return domain.Fields(f).Names(), nil
}

func (f fieldsCollection) Value(name string) (string, error) {
	v, _ := domain.Fields(f).Get(name)
	return v, nil
}

type errCollection struct{ err error }

func (e errCollection) Names() ([]string, error)          { return nil, e.err }
func (e errCollection) Value(name string) (string, error) { return "", e.err }

func headerFields(h http.Header) fieldsCollection {
	return fieldsCollection(sortedFields(h))
}

func valuesFields(v map[string][]string) fieldsCollection {
	return fieldsCollection(sortedFields(v))
}

func parseQuery(raw string) (fieldsCollection, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, err
	}
	return valuesFields(values), nil
}

func sortedFields(m map[string][]string) domain.Fields {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make(domain.Fields, 0, len(names))
	for _, k := range names {
		out = append(out, domain.Field{Name: k, Value: strings.Join(m[k], ",")})
	}
	return out
}

// serverVariables renders the request the way CGI hosts expose it.
func serverVariables(r *http.Request) domain.Fields {
	remoteHost, remotePort, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remoteHost = r.RemoteAddr
	}
	https := "off"
	if r.TLS != nil {
		https = "on"
	}

	vars := domain.Fields{
		{Name: "REQUEST_METHOD", Value: r.Method},
		{Name: "PATH_INFO", Value: r.URL.Path},
		{Name: "QUERY_STRING", Value: r.URL.RawQuery},
		{Name: "SERVER_PROTOCOL", Value: r.Proto},
		{Name: "SERVER_NAME", Value: r.Host},
		{Name: "HTTPS", Value: https},
		{Name: "REMOTE_ADDR", Value: remoteHost},
		{Name: "REMOTE_PORT", Value: remotePort},
		{Name: "CONTENT_TYPE", Value: r.Header.Get("Content-Type")},
		{Name: "CONTENT_LENGTH", Value: strconv.FormatInt(max(r.ContentLength, 0), 10)},
	}

	var allHTTP, allRaw strings.Builder
	for _, field := range sortedFields(r.Header) {
		name := "HTTP_" + strings.ToUpper(strings.ReplaceAll(field.Name, "-", "_"))
		vars = append(vars, domain.Field{Name: name, Value: field.Value})
		allHTTP.WriteString(name + ":" + field.Value + "\n")
		allRaw.WriteString(field.Name + ": " + field.Value + "\r\n")
	}
	vars = append(vars,
		domain.Field{Name: "ALL_HTTP", Value: allHTTP.String()},
		domain.Field{Name: "ALL_RAW", Value: allRaw.String()},
	)
	return vars
}
