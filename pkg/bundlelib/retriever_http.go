package bundlelib

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type httpRetriever struct {
	client *http.Client
}

func (h *httpRetriever) Retrieve(ctx context.Context, rawURL string, progress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, NewPermanentError("http", "request", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, classifyHTTPError("retrieve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cause := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, NewTransientError("http", "retrieve", cause)
		}
		return nil, NewPermanentError("http", "retrieve", cause)
	}

	data, err := readAllWithProgress(resp.Body, resp.ContentLength, progress)
	if err != nil {
		return nil, classifyHTTPError("read", err)
	}
	return data, nil
}

// classifyHTTPError treats network errors as transient and everything else,
// including cancellation, as permanent.
func classifyHTTPError(op string, err error) *TransportError {
	if errors.Is(err, context.Canceled) {
		return NewPermanentError("http", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewTransientError("http", op, err)
	}
	return NewPermanentError("http", op, err)
}
