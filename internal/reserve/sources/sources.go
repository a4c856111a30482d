// Package sources provides reserve.Source implementations: an HTTP reserve
// API, a JSON document on disk, and a fixed value.
package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bskt/internal/platform/config"
	"bskt/internal/reserve"
)

const maxDocumentBytes = 64 << 10

// document is the reserve API response body.
type document struct {
	TotalReserve *decimal.Decimal `json:"totalReserve"`
	Currency     string           `json:"currency"`
	LastUpdated  string           `json:"lastUpdated"`
}

func (d document) attestation(source string, now time.Time) (reserve.Attestation, error) {
	if d.TotalReserve == nil {
		return reserve.Attestation{}, fmt.Errorf("totalReserve missing")
	}
	observed := now
	if d.LastUpdated != "" {
		t, err := time.Parse(time.RFC3339, d.LastUpdated)
		if err != nil {
			return reserve.Attestation{}, fmt.Errorf("lastUpdated: %w", err)
		}
		observed = t
	}
	return reserve.Attestation{
		Value:      *d.TotalReserve,
		Currency:   strings.ToUpper(d.Currency),
		ObservedAt: observed,
		Source:     source,
	}, nil
}

func decode(r io.Reader, source string) (reserve.Attestation, error) {
	var doc document
	if err := json.NewDecoder(io.LimitReader(r, maxDocumentBytes)).Decode(&doc); err != nil {
		return reserve.Attestation{}, fmt.Errorf("decode reserve document: %w", err)
	}
	return doc.attestation(source, time.Now())
}

// HTTPSource reads a reserve API over HTTP GET.
type HTTPSource struct {
	id     string
	url    string
	client *http.Client
}

// NewHTTPSource builds a source for an absolute http(s) URL.
func NewHTTPSource(id, rawURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{id: id, url: rawURL, client: client}
}

func (s *HTTPSource) ID() string { return s.id }

func (s *HTTPSource) Read(ctx context.Context) (reserve.Attestation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return reserve.Attestation{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return reserve.Attestation{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return reserve.Attestation{}, fmt.Errorf("reserve API returned %d", resp.StatusCode)
	}
	return decode(resp.Body, s.id)
}

// FileSource reads a reserve document from disk on every call.
type FileSource struct {
	id   string
	path string
}

func NewFileSource(id, path string) *FileSource {
	return &FileSource{id: id, path: path}
}

func (s *FileSource) ID() string { return s.id }

func (s *FileSource) Read(ctx context.Context) (reserve.Attestation, error) {
	if err := ctx.Err(); err != nil {
		return reserve.Attestation{}, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return reserve.Attestation{}, err
	}
	defer f.Close()
	return decode(f, s.id)
}

// StaticSource always reports the same value.
type StaticSource struct {
	id    string
	value decimal.Decimal
}

func NewStaticSource(id string, value decimal.Decimal) *StaticSource {
	return &StaticSource{id: id, value: value}
}

func (s *StaticSource) ID() string { return s.id }

func (s *StaticSource) Read(ctx context.Context) (reserve.Attestation, error) {
	if err := ctx.Err(); err != nil {
		return reserve.Attestation{}, err
	}
	return reserve.Attestation{Value: s.value, ObservedAt: time.Now(), Source: s.id}, nil
}

// FromConfig builds one source per configured entry, dispatching on the
// URL scheme.
func FromConfig(entries []config.ReserveSource, client *http.Client) ([]reserve.Source, error) {
	out := make([]reserve.Source, 0, len(entries))
	for i, e := range entries {
		sourceID := e.ID
		if sourceID == "" {
			sourceID = fmt.Sprintf("source-%d", i)
		}
		u, err := url.Parse(e.URL)
		if err != nil {
			return nil, fmt.Errorf("reserve source %s: %w", sourceID, err)
		}
		switch u.Scheme {
		case "http", "https":
			out = append(out, NewHTTPSource(sourceID, e.URL, client))
		case "file":
			path := u.Path
			if u.Host != "" {
				path = u.Host + path
			}
			out = append(out, NewFileSource(sourceID, path))
		case "static":
			value, err := decimal.NewFromString(strings.TrimPrefix(e.URL, "static://"))
			if err != nil {
				return nil, fmt.Errorf("reserve source %s: static value: %w", sourceID, err)
			}
			out = append(out, NewStaticSource(sourceID, value))
		default:
			return nil, fmt.Errorf("reserve source %s: unsupported scheme %q", sourceID, u.Scheme)
		}
	}
	return out, nil
}
