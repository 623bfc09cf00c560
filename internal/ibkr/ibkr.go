package ibkr

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Statement-not-ready error codes returned by GetStatement.
var retryableCodes = map[int]bool{1018: true, 1019: true, 1021: true}

// FinanceClient fetches Flex Web Service statements from Interactive Brokers.
type FinanceClient struct {
	httpClient  *http.Client
	baseURL     string
	log         zerolog.Logger
	backoff     time.Duration
	maxBackoff  time.Duration
	maxAttempts int
}

// NewFinanceClient creates a new IBKR client.
//
// Parameters:
//   - baseURL: the FlexWebService root, SendRequest is appended to it
func NewFinanceClient(baseURL string, log zerolog.Logger) *FinanceClient {
	return &FinanceClient{
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		log:         log.With().Str("client", "ibkr").Logger(),
		backoff:     2 * time.Second,
		maxBackoff:  30 * time.Second,
		maxAttempts: 10,
	}
}

// FetchStatement runs the flex query and returns its normalised open lots.
func (c *FinanceClient) FetchStatement(ctx context.Context, token, queryID string) (Statement, error) {
	if token == "" || queryID == "" {
		return Statement{}, fmt.Errorf("flex token and query id are required")
	}

	request, err := c.sendRequest(ctx, token, queryID)
	if err != nil {
		return Statement{}, err
	}

	data, err := c.getStatement(ctx, token, request)
	if err != nil {
		return Statement{}, err
	}

	var report FlexQueryResponse
	if err := xml.Unmarshal(data, &report); err != nil {
		return Statement{}, fmt.Errorf("failed to decode flex statement: %w", err)
	}
	return Normalize(report)
}

func (c *FinanceClient) sendRequest(ctx context.Context, token, queryID string) (FlexRequestResponse, error) {
	queryURL := fmt.Sprintf("%s/SendRequest?t=%s&q=%s&v=3", c.baseURL, url.QueryEscape(token), url.QueryEscape(queryID))

	data, err := c.get(ctx, queryURL)
	if err != nil {
		return FlexRequestResponse{}, err
	}

	var response FlexRequestResponse
	if err := xml.Unmarshal(data, &response); err != nil {
		return FlexRequestResponse{}, fmt.Errorf("failed to decode flex request response: %w", err)
	}

	if response.ErrorCode != nil {
		return response, fmt.Errorf("ibkr error %d: %s", *response.ErrorCode, deref(response.ErrorMessage))
	}
	if !strings.EqualFold(response.Status, "success") {
		return response, fmt.Errorf("flex request failed with status %q", response.Status)
	}
	return response, nil
}

// getStatement polls GetStatement with exponential backoff while IBKR is still
// generating the report.
func (c *FinanceClient) getStatement(ctx context.Context, token string, request FlexRequestResponse) ([]byte, error) {
	queryURL := fmt.Sprintf("%s?t=%s&q=%s&v=3", request.URL, url.QueryEscape(token), url.QueryEscape(request.ReferenceCode))

	backoff := c.backoff
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		data, err := c.get(ctx, queryURL)
		if err != nil {
			return nil, err
		}

		var pending FlexRequestResponse
		if err := xml.Unmarshal(data, &pending); err != nil {
			// Not a FlexStatementResponse envelope: this is the statement itself.
			return data, nil
		}
		if pending.ErrorCode != nil && retryableCodes[*pending.ErrorCode] {
			c.log.Debug().Int("attempt", attempt+1).Int("code", *pending.ErrorCode).Msg("statement not ready")
			continue
		}
		if pending.ErrorCode != nil {
			return nil, fmt.Errorf("ibkr error %d: %s", *pending.ErrorCode, deref(pending.ErrorMessage))
		}
		return data, nil
	}
	return nil, fmt.Errorf("flex statement not ready after %d attempts", c.maxAttempts)
}

func (c *FinanceClient) get(ctx context.Context, queryURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Go/portfolio-tracker")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ibkr: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ibkr: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
