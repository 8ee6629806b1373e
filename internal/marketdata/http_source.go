package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	facts "settlement-recon/internal/facts/domain"
)

// HTTPSource fetches raw settlement records over the remote REST API.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource constructs an HTTP source. Timeouts are handled by the
// rate-limited client via request contexts, not by the http.Client.
func NewHTTPSource(baseURL, apiKey string) (*HTTPSource, error) {
	if baseURL == "" {
		return nil, errors.New("marketdata: empty base url")
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{},
	}, nil
}

type recordsResponse struct {
	Records []RawRecord `json:"records"`
}

// Records fetches all raw records for one settlement period.
func (s *HTTPSource) Records(ctx context.Context, date facts.SettlementDate, period facts.Period) ([]RawRecord, error) {
	query := url.Values{}
	query.Set("settlementDate", date.Key())
	query.Set("settlementPeriod", strconv.Itoa(int(period)))
	if s.apiKey != "" {
		query.Set("apiKey", s.apiKey)
	}

	endpoint := s.baseURL + "/records?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrThrottled
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("marketdata: remote status %d", resp.StatusCode)
	}

	var payload recordsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("marketdata: decode records: %w", err)
	}
	return payload.Records, nil
}
