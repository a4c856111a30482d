// Package httpclient adapts ledger.Gateway to a ledger-report service that
// speaks JSON over HTTP. Binary fields travel as 0x-prefixed hex.
package httpclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bskt/internal/ledger"
	id "bskt/pkg/domain"
	"bskt/pkg/platform/sentinel"
)

const maxResponseBytes = 1 << 20

// Client calls the ledger-report service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the default client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAPIKey sends the key as a bearer token on every call.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// New builds a client for baseURL with the given per-request timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid ledger service URL: %w", err)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type readRequest struct {
	Contract string `json:"contract"`
	Calldata string `json:"calldata"`
}

type readResponse struct {
	Value string `json:"value"`
}

type reportRequest struct {
	Payload string `json:"payload"`
}

type reportDTO struct {
	RawReport  string   `json:"rawReport"`
	Context    string   `json:"context"`
	Signatures []string `json:"signatures"`
}

type submitRequest struct {
	Consumer string    `json:"consumer"`
	Report   reportDTO `json:"report"`
	GasLimit uint64    `json:"gasLimit"`
}

type submitResponse struct {
	TxStatus     string `json:"txStatus"`
	TxHash       string `json:"txHash"`
	ErrorMessage string `json:"errorMessage"`
}

type logDTO struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type logsResponse struct {
	Logs []logDTO `json:"logs"`
}

func (c *Client) ReadLedgerValue(ctx context.Context, contract id.Address, calldata []byte) (*big.Int, error) {
	var resp readResponse
	if err := c.do(ctx, http.MethodPost, "/v1/read", readRequest{
		Contract: contract.String(),
		Calldata: encodeHex(calldata),
	}, &resp); err != nil {
		return nil, err
	}
	v, ok := new(big.Int).SetString(resp.Value, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("ledger service returned invalid value %q", resp.Value)
	}
	return v, nil
}

func (c *Client) GenerateAttestedReport(ctx context.Context, payload []byte) (ledger.SignedReport, error) {
	var resp reportDTO
	if err := c.do(ctx, http.MethodPost, "/v1/reports", reportRequest{Payload: encodeHex(payload)}, &resp); err != nil {
		return ledger.SignedReport{}, err
	}
	return fromReportDTO(resp)
}

func (c *Client) SubmitReport(ctx context.Context, consumer id.Address, report ledger.SignedReport, gasLimit uint64) (ledger.WriteResult, error) {
	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/submit", submitRequest{
		Consumer: consumer.String(),
		Report:   toReportDTO(report),
		GasLimit: gasLimit,
	}, &resp); err != nil {
		return ledger.WriteResult{}, err
	}

	result := ledger.WriteResult{
		Status:       parseStatus(resp.TxStatus),
		ErrorMessage: resp.ErrorMessage,
	}
	if resp.TxHash != "" {
		h, err := id.ParseTxHash(resp.TxHash)
		if err != nil {
			return ledger.WriteResult{}, fmt.Errorf("ledger service returned invalid tx hash: %w", err)
		}
		result.TxHash = h
	}
	return result, nil
}

func (c *Client) ReadReceiptLogs(ctx context.Context, txHash id.TxHash) ([]ledger.Log, error) {
	var resp logsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/receipts/"+url.PathEscape(txHash.String())+"/logs", nil, &resp); err != nil {
		return nil, err
	}
	logs := make([]ledger.Log, 0, len(resp.Logs))
	for _, l := range resp.Logs {
		decoded, err := fromLogDTO(l)
		if err != nil {
			return nil, err
		}
		logs = append(logs, decoded)
	}
	return logs, nil
}

// do performs one JSON round trip. Transport failures and 5xx responses
// wrap sentinel.ErrUnavailable; context deadlines keep their identity.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return fmt.Errorf("%w: ledger service %s: %v", context.DeadlineExceeded, path, err)
		}
		return fmt.Errorf("%w: ledger service %s: %v", sentinel.ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "ledger service call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read ledger service response: %v", sentinel.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", sentinel.ErrNotFound, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: ledger service %s returned %d", sentinel.ErrUnavailable, path, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("ledger service %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func parseStatus(s string) ledger.TxStatus {
	switch strings.ToUpper(s) {
	case "SUCCESS", "2":
		return ledger.TxStatusSuccess
	case "REVERTED", "1":
		return ledger.TxStatusReverted
	default:
		return ledger.TxStatusFatal
	}
}

func toReportDTO(r ledger.SignedReport) reportDTO {
	sigs := make([]string, len(r.Signatures))
	for i, s := range r.Signatures {
		sigs[i] = encodeHex(s)
	}
	return reportDTO{
		RawReport:  encodeHex(r.RawReport),
		Context:    encodeHex(r.Context),
		Signatures: sigs,
	}
}

func fromReportDTO(d reportDTO) (ledger.SignedReport, error) {
	raw, err := decodeHex(d.RawReport)
	if err != nil {
		return ledger.SignedReport{}, fmt.Errorf("decode rawReport: %w", err)
	}
	rctx, err := decodeHex(d.Context)
	if err != nil {
		return ledger.SignedReport{}, fmt.Errorf("decode context: %w", err)
	}
	sigs := make([][]byte, 0, len(d.Signatures))
	for _, s := range d.Signatures {
		sig, err := decodeHex(s)
		if err != nil {
			return ledger.SignedReport{}, fmt.Errorf("decode signature: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return ledger.SignedReport{RawReport: raw, Context: rctx, Signatures: sigs}, nil
}

func fromLogDTO(d logDTO) (ledger.Log, error) {
	addr, err := id.ParseAddress(d.Address)
	if err != nil {
		return ledger.Log{}, fmt.Errorf("decode log address: %w", err)
	}
	topics := make([][32]byte, 0, len(d.Topics))
	for _, t := range d.Topics {
		b, err := decodeHex(t)
		if err != nil || len(b) != 32 {
			return ledger.Log{}, fmt.Errorf("decode log topic %q", t)
		}
		var topic [32]byte
		copy(topic[:], b)
		topics = append(topics, topic)
	}
	data, err := decodeHex(d.Data)
	if err != nil {
		return ledger.Log{}, fmt.Errorf("decode log data: %w", err)
	}
	return ledger.Log{Address: addr, Topics: topics, Data: data}, nil
}

func encodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return hex.DecodeString(s)
}
