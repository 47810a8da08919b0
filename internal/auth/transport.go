package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	InitDataHeader     = "X-Telegram-Init-Data"
	InitDataBodyField  = "initData"
	InitDataQueryParam = "tgWebAppData"

	maxBodyBytes = 64 << 10
)

var ErrNoInitData = errors.New("no init data supplied") // 400

// Carrier holds the parts of a request that may carry init data, so the
// extractors can be exercised without an HTTP server.
type Carrier struct {
	Header http.Header
	Body   []byte
	URL    *url.URL
}

// Extractor pulls the raw init-data string out of one transport. An empty
// result means the transport did not carry it.
type Extractor struct {
	Name    string
	Extract func(c *Carrier) string
}

// DefaultExtractors lists the transports in priority order.
var DefaultExtractors = []Extractor{
	{Name: "header", Extract: fromHeader},
	{Name: "body", Extract: fromBody},
	{Name: "query", Extract: fromQuery},
}

// ExtractInitData returns the first non-empty payload and the transport
// that supplied it.
func ExtractInitData(c *Carrier, extractors []Extractor) (string, string, error) {
	for _, e := range extractors {
		if raw := e.Extract(c); raw != "" {
			return raw, e.Name, nil
		}
	}
	return "", "", ErrNoInitData
}

// NewCarrier reads the request body (bounded) so it can be inspected and
// still be decoded by the handler afterwards.
func NewCarrier(r *http.Request) (*Carrier, error) {
	c := &Carrier{Header: r.Header, URL: r.URL}
	if r.Body == nil {
		return c, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	c.Body = body
	return c, nil
}

func fromHeader(c *Carrier) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(InitDataHeader)
}

func fromBody(c *Carrier) string {
	if len(c.Body) == 0 {
		return ""
	}
	var payload struct {
		InitData string `json:"initData"`
	}
	if err := json.Unmarshal(c.Body, &payload); err != nil {
		return ""
	}
	return payload.InitData
}

func fromQuery(c *Carrier) string {
	if c.URL == nil {
		return ""
	}
	return c.URL.Query().Get(InitDataQueryParam)
}
