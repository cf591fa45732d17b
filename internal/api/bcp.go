package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
	"table-allocator/internal/config"

	"github.com/valyala/fasthttp"
)

// BCPClient talks to the Best Coast Pairings API, the external source of
// pairings and per-round scores.
type BCPClient struct {
	apiKey      string
	client      *fasthttp.Client
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewBCPClient(cfg *config.Config) *BCPClient {
	return &BCPClient{
		apiKey: cfg.BCPAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		rateLimit: RateLimitInfo{
			Limit:     60,
			Remaining: 60,
			Reset:     60,
			UpdatedAt: time.Now(),
		},
	}
}

func (c *BCPClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *BCPClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *BCPClient) GetEvent(ctx context.Context, eventID string) (*EventResponse, error) {
	url := fmt.Sprintf("https://api.bestcoastpairings.com/v1/events/%s", eventID)
	return doRequest[EventResponse](ctx, c, url)
}

func (c *BCPClient) GetPairings(ctx context.Context, eventID string, round int) (*PairingsResponse, error) {
	url := fmt.Sprintf("https://api.bestcoastpairings.com/v1/events/%s/pairings?round=%d", eventID, round)
	return doRequest[PairingsResponse](ctx, c, url)
}

func doRequest[T any](ctx context.Context, client *BCPClient, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Authorization", client.apiKey)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	client.updateRateLimit(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("BCP API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type EventResponse struct {
	Data EventData `json:"data"`
}

type EventData struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NumberOfRounds int    `json:"number_of_rounds"`
	CurrentRound   int    `json:"current_round"`
	Started        bool   `json:"started"`
	Ended          bool   `json:"ended"`
}

type PairingsResponse struct {
	Data []BCPPairing `json:"data"`
}

// BCPPairing is one matchup as BCP reports it. Player2 is absent for a bye,
// Table is absent when BCP proposed no table for the matchup.
type BCPPairing struct {
	ID      string     `json:"id"`
	Round   int        `json:"round"`
	Table   *int       `json:"table,omitempty"`
	Player1 BCPPlayer  `json:"player1"`
	Player2 *BCPPlayer `json:"player2,omitempty"`
}

type BCPPlayer struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	RoundPoints      int    `json:"round_points"`
	TournamentPoints int    `json:"tournament_points"`
}
