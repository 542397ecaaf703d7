package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/sevans717/aphila-sub004/internal/domain"
)

// HTTPNotifier posts notifications as JSON to an external push service:
//
//	POST <url> {"userId": 1, "title": "...", "body": "...", "data": {...}}
//
// Any 2xx response counts as delivered.
type HTTPNotifier struct {
	url     string
	client  *http.Client
	timeout time.Duration
	breaker *breaker
}

func NewHTTPNotifier(url string, timeout time.Duration, clk clock.Clock) *HTTPNotifier {
	if clk == nil {
		clk = clock.New()
	}
	return &HTTPNotifier{
		url:     url,
		client:  &http.Client{},
		timeout: timeout,
		breaker: newBreaker(5, 30*time.Second, clk),
	}
}

type pushRequest struct {
	UserID int64 `json:"userId"`
	Notification
}

func (n *HTTPNotifier) SendToUser(ctx context.Context, userID int64, note Notification) bool {
	if !n.breaker.allow() {
		log.Warn().Int64("user_id", userID).Msg("push: circuit open, notification skipped")
		return false
	}
	err := n.post(ctx, userID, note)
	n.breaker.record(err == nil)
	if err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Str("circuit", n.breaker.current().String()).Msg("push: send failed")
		return false
	}
	return true
}

func (n *HTTPNotifier) post(ctx context.Context, userID int64, note Notification) error {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	body, err := json.Marshal(pushRequest{UserID: userID, Notification: note})
	if err != nil {
		return fmt.Errorf("%w: encode: %v", domain.ErrDeliveryDegraded, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrDeliveryDegraded, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeliveryDegraded, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: push service returned %d", domain.ErrDeliveryDegraded, resp.StatusCode)
	}
	return nil
}
