package domain

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// RequestSnapshot is the redacted view of the HTTP request being served when
// the fault happened.
type RequestSnapshot struct {
	HostName    string   `json:"hostName"`
	URL         string   `json:"url"`
	HTTPMethod  string   `json:"httpMethod"`
	IPAddress   string   `json:"ipAddress,omitempty"`
	QueryString Fields   `json:"queryString"`
	Form        Fields   `json:"form"`
	Headers     Fields   `json:"headers"`
	Data        Fields   `json:"data"`
	Cookies     []Cookie `json:"cookies"`
	RawData     string   `json:"rawData,omitempty"`
}

// Cookie is a single request cookie.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Field is a single name/value pair of a Fields mapping.
type Field struct {
	Name  string
	Value string
}

// Fields is an ordered name/value mapping. It encodes as a JSON object whose
// keys keep insertion order.
type Fields []Field

// Get returns the value stored under name.
func (f Fields) Get(name string) (string, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return "", false
}

// Has reports whether name is present.
func (f Fields) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Names returns the names in order.
func (f Fields) Names() []string {
	names := make([]string, len(f))
	for i, field := range f {
		names[i] = field.Name
	}
	return names
}

// Without returns a copy of f with every name in names removed, compared
// case-insensitively.
func (f Fields) Without(names ...string) Fields {
	out := make(Fields, 0, len(f))
	for _, field := range f {
		drop := false
		for _, name := range names {
			if strings.EqualFold(field.Name, name) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, field)
		}
	}
	return out
}

// MarshalJSON encodes the mapping as an object in insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of string values, keeping key order. null
// leaves f nil; a null value decodes as "".
func (f *Fields) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if tok != json.Delim('{') {
		return fmt.Errorf("fields: expected object, got %v", tok)
	}

	out := Fields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("fields: unexpected key %v", tok)
		}
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		var value string
		switch v := tok.(type) {
		case string:
			value = v
		case nil:
		case json.Delim:
			return fmt.Errorf("fields: value of %q is not a scalar", name)
		default:
			value = fmt.Sprint(v)
		}
		out = append(out, Field{Name: name, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}
