// Package riskapi talks to the external risk service. Five independent
// category endpoints exist; any of them may be down without taking the
// analysis with it, so FetchAll degrades to neutral defaults per category.
package riskapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Category names one of the five risk endpoints.
type Category string

const (
	CategoryThreat   Category = "threat"
	CategorySanction Category = "sanction"
	CategoryApproval Category = "approval"
	CategoryExposure Category = "exposure"
	CategoryContract Category = "contract"
)

// ThreatDetail is one structured threat observation.
type ThreatDetail struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// ThreatAssessment is the threat endpoint response.
type ThreatAssessment struct {
	RiskScore float64        `json:"riskScore"`
	Flags     []string       `json:"flags"`
	Details   []ThreatDetail `json:"details"`
}

// SanctionAssessment is the sanction-screening endpoint response.
type SanctionAssessment struct {
	Sanctioned bool     `json:"sanctioned"`
	Lists      []string `json:"lists"`
}

// ApprovalRisk scores one outstanding token approval.
type ApprovalRisk struct {
	Spender   string  `json:"spender"`
	RiskScore float64 `json:"riskScore"`
}

// ApprovalAssessment is the approval endpoint response.
type ApprovalAssessment struct {
	Approvals []ApprovalRisk `json:"approvals"`
}

// ExposureAssessment is the exposure endpoint response.
type ExposureAssessment struct {
	ExposureScore float64  `json:"exposureScore"`
	Categories    []string `json:"categories"`
}

// ContractAssessment is the contract endpoint response.
type ContractAssessment struct {
	RiskScore float64 `json:"riskScore"`
	Verified  bool    `json:"verified"`
}

// Assessment joins all five category results. A failed category keeps its
// zero-risk default and is listed in Degraded.
type Assessment struct {
	Threat   ThreatAssessment   `json:"threat"`
	Sanction SanctionAssessment `json:"sanction"`
	Approval ApprovalAssessment `json:"approval"`
	Exposure ExposureAssessment `json:"exposure"`
	Contract ContractAssessment `json:"contract"`
	Degraded []string           `json:"degraded,omitempty"`
}

// ClientOptions parameterise the risk service client.
type ClientOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Client queries the external risk service.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a risk service client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "risk_api").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// FetchAll queries the five categories concurrently and joins the results.
// Individual failures never fail the call; they leave the category at its
// neutral default and mark the assessment as degraded.
func (c *Client) FetchAll(ctx context.Context, address string) (Assessment, error) {
	if c.baseURL == "" {
		return Assessment{}, errors.New("risk api base url not configured")
	}
	if address == "" {
		return Assessment{}, errors.New("address required")
	}

	var (
		mu         sync.Mutex
		assessment Assessment
	)

	record := func(cat Category, err error) {
		mu.Lock()
		defer mu.Unlock()
		assessment.Degraded = append(assessment.Degraded, string(cat))
		c.logger.Warn().Err(err).Str("category", string(cat)).Str("address", address).
			Msg("risk category unavailable, using neutral default")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.fetch(gctx, CategoryThreat, address, &assessment.Threat); err != nil {
			record(CategoryThreat, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.fetch(gctx, CategorySanction, address, &assessment.Sanction); err != nil {
			record(CategorySanction, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.fetch(gctx, CategoryApproval, address, &assessment.Approval); err != nil {
			record(CategoryApproval, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.fetch(gctx, CategoryExposure, address, &assessment.Exposure); err != nil {
			record(CategoryExposure, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.fetch(gctx, CategoryContract, address, &assessment.Contract); err != nil {
			record(CategoryContract, err)
		}
		return nil
	})

	_ = g.Wait()
	sort.Strings(assessment.Degraded)
	return assessment, nil
}

// fetch posts {"address": ...} to one category endpoint and decodes into out.
// Writes to out race-free because each category owns a distinct field.
func (c *Client) fetch(ctx context.Context, cat Category, address string, out any) error {
	body, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/v1/risk/%s", c.baseURL, cat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("X-API-Key", c.opts.APIKey)
	}
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("risk api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", cat, err)
	}
	return nil
}
