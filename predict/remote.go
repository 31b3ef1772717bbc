package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"
)

// Remote evaluates a model hosted by an inference server speaking the
// TensorFlow Serving REST predict protocol
type Remote struct {
	// URL is the full predict endpoint
	URL string

	// Client is the HTTP client used for requests
	Client *http.Client

	limiter *rate.Limiter
	timeout time.Duration
}

type predictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

// NewRemote returns a Remote for model name on the server at base
func NewRemote(base, name string, opts Options) *Remote {
	base = strings.TrimSuffix(base, "/")
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		lim = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Remote{
		URL:     fmt.Sprintf("%s/v1/models/%s:predict", base, name),
		Client:  &http.Client{Timeout: timeout},
		limiter: lim,
		timeout: timeout}
}

// Predict implements Predictor.  Connection failures and 5xx replies are
// retried with an exponential backoff; 4xx replies are not.
func (r *Remote) Predict(ctx context.Context, series []float64) ([][]float64, error) {
	body, err := json.Marshal(predictRequest{Instances: [][]float64{series}})
	if err != nil {
		return nil, err
	}
	err = r.limiter.Wait(ctx)
	if err != nil {
		return nil, err
	}

	var (
		resp      predictResponse
		permanent error
	)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
		if err != nil {
			permanent = err
			return nil
		}
		req.Header.Set("Content-Type", "application/json")
		hresp, err := r.Client.Do(req)
		if err != nil {
			return err
		}
		defer hresp.Body.Close()
		if hresp.StatusCode >= 500 {
			io.Copy(io.Discard, hresp.Body)
			return fmt.Errorf("inference server replied %s", hresp.Status)
		}
		resp = predictResponse{}
		err = json.NewDecoder(hresp.Body).Decode(&resp)
		if hresp.StatusCode != http.StatusOK {
			msg := resp.Error
			if msg == "" {
				msg = hresp.Status
			}
			permanent = fmt.Errorf("inference server rejected request: %s", msg)
			return nil
		}
		if err != nil {
			permanent = fmt.Errorf("decoding inference server reply: %v", err)
		}
		return nil
	}

	err = backoff.Retry(op, backoff.WithContext(&backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         500 * time.Millisecond,
		MaxElapsedTime:      r.timeout,
		Clock:               backoff.SystemClock}, ctx))
	if err != nil {
		return nil, err
	}
	if permanent != nil {
		return nil, permanent
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("inference server: %s", resp.Error)
	}
	if len(resp.Predictions) == 0 {
		return nil, ErrEmptyPrediction
	}
	return resp.Predictions, nil
}
