package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiKeyHeader           = "x-apikey"
	defaultDocStoreTimeout = 10 * time.Second
)

// DocStoreConfig configures a REST document store client.
type DocStoreConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	Collections Collections
}

// DocStoreBackend talks to a REST document store that exposes one endpoint
// per collection, supports JSON queries through the q parameter and partial
// updates through PATCH.
type DocStoreBackend struct {
	base   string
	apiKey string
	cols   Collections
	client *http.Client
}

// NewDocStoreBackend builds an HTTP document store client.
func NewDocStoreBackend(cfg DocStoreConfig) (*DocStoreBackend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("document store url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse document store url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultDocStoreTimeout
	}
	return &DocStoreBackend{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		cols:   cfg.Collections.WithDefaults(),
		client: &http.Client{Timeout: timeout},
	}, nil
}

type docAccount struct {
	ID        string `json:"_id"`
	AccountID string `json:"accountId"`
	Balance   int64  `json:"balance"`
	Status    string `json:"status"`
}

// StatusError reports a non-2xx response from the document store.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

func (b *DocStoreBackend) ListDirectory(ctx context.Context) ([]DirectoryRecord, error) {
	var out []DirectoryRecord
	if err := b.do(ctx, http.MethodGet, b.collectionURL(b.cols.Directory, nil), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *DocStoreBackend) FindAccount(ctx context.Context, accountID string) (Account, error) {
	q, err := json.Marshal(map[string]string{"accountId": accountID})
	if err != nil {
		return Account{}, err
	}
	var docs []docAccount
	u := b.collectionURL(b.cols.Accounts, url.Values{"q": []string{string(q)}})
	if err := b.do(ctx, http.MethodGet, u, nil, &docs); err != nil {
		return Account{}, err
	}
	for _, d := range docs {
		if d.AccountID == accountID {
			return Account{
				InternalRecordID: d.ID,
				AccountID:        d.AccountID,
				Balance:          d.Balance,
				Status:           ParseStatus(d.Status),
			}, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

// PatchBalance sends a PATCH carrying only the balance field.
func (b *DocStoreBackend) PatchBalance(ctx context.Context, internalRecordID string, newBalance int64) error {
	u := b.collectionURL(b.cols.Accounts, nil) + "/" + url.PathEscape(internalRecordID)
	err := b.do(ctx, http.MethodPatch, u, map[string]int64{"balance": newBalance}, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return ErrRecordNotFound
	}
	return err
}

func (b *DocStoreBackend) AppendHistory(ctx context.Context, record TransferRecord) error {
	return b.do(ctx, http.MethodPost, b.collectionURL(b.cols.History, nil), record, nil)
}

func (b *DocStoreBackend) collectionURL(collection string, query url.Values) string {
	u := b.base + "/" + url.PathEscape(collection)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (b *DocStoreBackend) do(ctx context.Context, method, u string, payload, response any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", method, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set(apiKeyHeader, b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, URL: u, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if response == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, u, err)
	}
	return nil
}
