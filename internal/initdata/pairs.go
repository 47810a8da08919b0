package initdata

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	HashKey      = "hash"
	SignatureKey = "signature"
	AuthDateKey  = "auth_date"
	UserKey      = "user"
)

// Pairs is the canonical form of an init-data query string. Keys iterate in
// first-seen order; a repeated key keeps its first position and its last value.
type Pairs struct {
	keys   []string
	values map[string]string
}

func NewPairs() *Pairs {
	return &Pairs{values: make(map[string]string)}
}

// Parse splits raw on '&' and each segment on its first '=', decoding every
// value exactly once.
func Parse(raw string) (*Pairs, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}

	p := NewPairs()
	for i, segment := range strings.Split(raw, "&") {
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			return nil, fmt.Errorf("%w: segment %d has no '='", ErrMalformedPayload, i)
		}
		if key == "" {
			return nil, fmt.Errorf("%w: segment %d has an empty key", ErrMalformedPayload, i)
		}

		decoded, err := url.QueryUnescape(value)
		if err != nil {
			return nil, fmt.Errorf("%w: value of %q: %v", ErrMalformedPayload, key, err)
		}
		p.Set(key, decoded)
	}

	return p, nil
}

func (p *Pairs) Get(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

func (p *Pairs) Set(key, value string) {
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

func (p *Pairs) Delete(key string) {
	if _, exists := p.values[key]; !exists {
		return
	}
	delete(p.values, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in first-seen order.
func (p *Pairs) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

func (p *Pairs) Len() int {
	return len(p.keys)
}

func (p *Pairs) Clone() *Pairs {
	c := &Pairs{
		keys:   make([]string, len(p.keys)),
		values: make(map[string]string, len(p.values)),
	}
	copy(c.keys, p.keys)
	for k, v := range p.values {
		c.values[k] = v
	}
	return c
}

// CheckString builds the signed message: every pair except the hash, as
// key=value lines sorted byte-wise by key and joined with '\n'.
func (p *Pairs) CheckString() string {
	keys := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		if k != HashKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.values[k])
	}
	return b.String()
}

// Encode renders the pairs back into a query string in first-seen order.
func (p *Pairs) Encode() string {
	parts := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		parts = append(parts, k+"="+url.QueryEscape(p.values[k]))
	}
	return strings.Join(parts, "&")
}
