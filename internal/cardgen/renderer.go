package cardgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"idportal/internal/apperr"

	"go.uber.org/zap"
)

const maxCardBytes = 10 << 20

type renderRequest struct {
	Card
	Width  int `json:"width"`
	Height int `json:"height"`
}

// HTTPRenderer posts card data to the document service and returns the PDF it
// renders.
type HTTPRenderer struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewHTTPRenderer(url string, timeout time.Duration, log *zap.Logger) *HTTPRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPRenderer{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Render returns the card as a validated PDF. Every failure is an
// external-dependency error.
func (r *HTTPRenderer) Render(ctx context.Context, card Card) ([]byte, error) {
	if r.url == "" {
		return nil, apperr.External("card renderer is not configured", nil)
	}

	body, err := json.Marshal(renderRequest{Card: card, Width: CardWidthPt, Height: CardHeightPt})
	if err != nil {
		return nil, fmt.Errorf("failed to encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, apperr.External("card renderer unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCardBytes+1))
	if err != nil {
		return nil, apperr.External("failed to read rendered card", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.External(fmt.Sprintf("card renderer returned %d", resp.StatusCode), nil)
	}
	if len(data) > maxCardBytes {
		return nil, apperr.External("rendered card is too large", nil)
	}
	if err := Validate(data); err != nil {
		return nil, apperr.External("card renderer returned an invalid document", err)
	}

	r.log.Debug("card rendered",
		zap.String("submission_id", card.SubmissionID),
		zap.Int("bytes", len(data)),
		zap.Duration("latency", time.Since(start)))
	return data, nil
}
