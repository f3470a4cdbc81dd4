// Package sdex is the client of the venue gateway that fronts the Stellar
// decentralized exchange: REST for offers and market exits, a websocket
// stream for fill notifications.
package sdex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/crypto"
	"github.com/pharuq411/StellarSwipe-Backends-sub000/internal/domain"
)

// Account signature headers, set when a request carries a signing key.
const (
	HeaderAccount          = "X-EXG-ACCOUNT"
	HeaderAccountSignature = "X-EXG-ACCOUNT-SIGNATURE"
)

// Client is the REST client of the venue gateway. It implements
// domain.VenueGateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	hmacAuth   *crypto.HMACAuth
	now        func() time.Time
}

// NewClient creates a venue REST client. hmac may be nil for gateways that
// only check account signatures.
func NewClient(baseURL string, timeout time.Duration, hmac *crypto.HMACAuth) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		hmacAuth:   hmac,
		now:        time.Now,
	}
}

// SubmitLimitOffer places one limit offer and returns its venue id.
func (c *Client) SubmitLimitOffer(ctx context.Context, req domain.OfferRequest) (string, error) {
	respBody, err := c.do(ctx, http.MethodPost, "/offers", toAPIOffer(req), req.SigningKey)
	if err != nil {
		return "", fmt.Errorf("sdex: submit offer: %w", err)
	}
	var result APIOfferResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("sdex: decode offer result: %w", err)
	}
	if result.OfferID == "" {
		return "", errors.New("sdex: submit offer: empty offer id")
	}
	return result.OfferID, nil
}

// SubmitLimitOffers places all offers in one atomic ledger transaction.
func (c *Client) SubmitLimitOffers(ctx context.Context, reqs []domain.OfferRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	batch := APIOfferBatch{Atomic: true, Offers: make([]APIOffer, 0, len(reqs))}
	for _, r := range reqs {
		batch.Offers = append(batch.Offers, toAPIOffer(r))
	}

	respBody, err := c.do(ctx, http.MethodPost, "/offers/batch", batch, reqs[0].SigningKey)
	if err != nil {
		return nil, fmt.Errorf("sdex: submit offer batch: %w", err)
	}
	var result APIOfferBatchResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("sdex: decode offer batch result: %w", err)
	}
	if len(result.OfferIDs) != len(reqs) {
		return nil, fmt.Errorf("sdex: offer batch returned %d ids for %d offers", len(result.OfferIDs), len(reqs))
	}
	return result.OfferIDs, nil
}

// OfferExists reports whether the offer is still open on the book.
func (c *Client) OfferExists(ctx context.Context, offerID string) (bool, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/offers/"+url.PathEscape(offerID), nil, "")
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("sdex: get offer %s: %w", offerID, err)
	}
	var status APIOfferStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return false, fmt.Errorf("sdex: decode offer %s: %w", offerID, err)
	}
	return status.Status == "open", nil
}

// CancelOffer removes an offer. The pair is required by the ledger
// operation that deletes it.
func (c *Client) CancelOffer(ctx context.Context, offerID string, pair domain.AssetPair, signingKey string) error {
	q := url.Values{}
	q.Set("selling", string(pair.Selling))
	q.Set("buying", string(pair.Buying))
	path := "/offers/" + url.PathEscape(offerID) + "?" + q.Encode()

	if _, err := c.do(ctx, http.MethodDelete, path, nil, signingKey); err != nil {
		return fmt.Errorf("sdex: cancel offer %s: %w", offerID, err)
	}
	return nil
}

// SubmitMarketSell flattens the requested quantity at market and returns the
// average fill price.
func (c *Client) SubmitMarketSell(ctx context.Context, req domain.MarketExitRequest) (float64, error) {
	body := APIMarketOrder{
		Selling:        string(req.Position.Pair.Selling),
		Buying:         string(req.Position.Pair.Buying),
		Side:           string(req.Side),
		Amount:         formatAmount(req.Quantity),
		ReferencePrice: formatAmount(req.Price),
		ClientRef:      req.Position.ID,
	}
	respBody, err := c.do(ctx, http.MethodPost, "/market-orders", body, req.SigningKey)
	if err != nil {
		return 0, fmt.Errorf("sdex: market %s %s: %w", req.Side, req.Position.ID, err)
	}
	var result APIMarketResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, fmt.Errorf("sdex: decode market result: %w", err)
	}
	price, err := parseAmount("fill_price", result.FillPrice)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("sdex: market %s %s: no fill", req.Side, req.Position.ID)
	}
	return price, nil
}

// do builds, signs, sends and reads a request. HMAC headers authenticate the
// engine; the account signature authorizes the user operation.
func (c *Client) do(ctx context.Context, method, path string, body any, signingKey string) ([]byte, error) {
	var (
		bodyReader io.Reader
		bodyStr    string
	)
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	ts := c.now().Unix()
	if c.hmacAuth != nil {
		for k, v := range c.hmacAuth.HeadersAt(method, path, bodyStr, ts) {
			req.Header.Set(k, v)
		}
	}
	if signingKey != "" {
		signer, err := crypto.NewRequestSigner(signingKey)
		if err != nil {
			return nil, errors.Join(domain.ErrSigningFailed, err)
		}
		req.Header.Set(HeaderAccount, signer.Account())
		req.Header.Set(HeaderAccountSignature, signer.Sign(method, path, bodyStr, ts))
		if c.hmacAuth == nil {
			req.Header.Set(crypto.HeaderTimestamp, strconv.FormatInt(ts, 10))
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrSigningFailed, statusCode, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

var _ domain.VenueGateway = (*Client)(nil)
