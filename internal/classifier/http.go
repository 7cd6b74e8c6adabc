// CaseGuard - Behavioral Threat Detection for Case-Tracking Platforms
// Copyright 2026 CaseGuard Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/caseguard/caseguard

package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/caseguard/caseguard/internal/logging"
	"github.com/caseguard/caseguard/internal/models"
)

// HTTPClassifier calls a remote scoring service. Calls run behind a
// circuit breaker so a degraded model endpoint cannot slow the
// detection pipeline: when the circuit is open, Score fails fast and
// rule scoring proceeds without an opinion.
type HTTPClassifier struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker[Opinion]
}

// scoreRequest is the wire payload sent to the scoring service.
type scoreRequest struct {
	Event        *models.Event  `json:"event"`
	History      []models.Event `json:"history"`
	HistoryCount int            `json:"history_count"`
}

// NewHTTPClassifier builds a classifier against url with the given
// per-call timeout.
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[Opinion](gobreaker.Settings{
		Name:        "risk-classifier",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Classifier circuit breaker state transition")
		},
	})

	return &HTTPClassifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		cb:     cb,
	}
}

// Score posts the event and its history to the scoring service.
func (c *HTTPClassifier) Score(ctx context.Context, event *models.Event, history []models.Event) (Opinion, error) {
	opinion, err := c.cb.Execute(func() (Opinion, error) {
		return c.score(ctx, event, history)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Opinion{}, fmt.Errorf("classifier unavailable: %w", err)
		}
		return Opinion{}, err
	}
	return opinion, nil
}

func (c *HTTPClassifier) score(ctx context.Context, event *models.Event, history []models.Event) (Opinion, error) {
	body, err := json.Marshal(scoreRequest{
		Event:        event,
		History:      history,
		HistoryCount: len(history),
	})
	if err != nil {
		return Opinion{}, fmt.Errorf("encoding score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Opinion{}, fmt.Errorf("building score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Opinion{}, fmt.Errorf("calling classifier: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Opinion{}, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var opinion Opinion
	if err := json.NewDecoder(resp.Body).Decode(&opinion); err != nil {
		return Opinion{}, fmt.Errorf("decoding classifier response: %w", err)
	}
	if opinion.Probability < 0 || opinion.Probability > 1 {
		return Opinion{}, fmt.Errorf("classifier probability %f out of range", opinion.Probability)
	}
	return opinion, nil
}
