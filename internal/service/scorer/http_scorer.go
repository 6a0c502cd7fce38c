package scorer

import (
	"context"
	"fmt"
	"time"

	domsvc "SentiGate/internal/domain/service"
	xhttp "SentiGate/pkg/http"
)

// HTTPScorer scores article text against an external model service. The
// service owns the NLP; this adapter only enforces the [-1, 1] contract.
type HTTPScorer struct {
	baseURL string
	client  *xhttp.Client
}

func NewHTTPScorer(baseURL string, timeout time.Duration) *HTTPScorer {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPScorer{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

type scoreReq struct {
	Text string `json:"text"`
}

type scoreResp struct {
	Score float64 `json:"score"`
}

func (s *HTTPScorer) Score(ctx context.Context, text string) (float64, error) {
	if s.baseURL == "" {
		return 0, fmt.Errorf("scorer http client not initialized")
	}
	var resp scoreResp
	err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    s.baseURL + "/score",
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: scoreReq{Text: text},
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("post score: %w", err)
	}
	if resp.Score < -1 || resp.Score > 1 {
		return 0, fmt.Errorf("score %f outside [-1, 1]", resp.Score)
	}
	return resp.Score, nil
}

var _ domsvc.Scorer = (*HTTPScorer)(nil)
