package object

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kamusis/embr/internal/embedding"
)

// Meta is the JSON sidecar stored next to every blob.
type Meta struct {
	Hash        string          `json:"hash"`
	Dims        int             `json:"dims"`
	DType       embedding.DType `json:"dtype"`
	Compression Compression     `json:"compression"`
	Size        int             `json:"size"`
	Source      string          `json:"source,omitempty"`
	Model       string          `json:"model,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Parent      string          `json:"parent,omitempty"`
	Attributes  Attributes      `json:"attributes,omitempty"`
}

// Attribute is one free-form key/value pair.
type Attribute struct {
	Key   string
	Value string
}

// Attributes is an insertion-ordered string map. It marshals as a JSON
// object whose keys keep their insertion order.
type Attributes []Attribute

// Get returns the value for key.
func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// Set replaces the value for key in place, or appends a new pair.
func (a *Attributes) Set(key, value string) {
	for i := range *a {
		if (*a)[i].Key == key {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attribute{Key: key, Value: value})
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, attr := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(attr.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(attr.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*a = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("attributes: expected object, got %v", tok)
	}
	var out Attributes
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := kt.(string)
		if !ok {
			return fmt.Errorf("attributes: expected string key, got %v", kt)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("attributes: value for %q: %w", key, err)
		}
		out.Set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*a = out
	return nil
}
