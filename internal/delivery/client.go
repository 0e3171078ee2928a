// File: internal/delivery/client.go

// Package delivery forwards finished simulation payloads to the backend.
package delivery

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/payload"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const insertPath = "api/model/sl_cad_interacao_simulacao/post/insert_simulacao"

// cookieOrder is the backend's preferred Cookie header layout. Cookies not
// listed here are appended alphabetically.
var cookieOrder = []string{
	"_hjSessionUser_3537769",
	"cf_clearance",
	"cotonic-sid",
	"startHidden",
	"timezone",
	"z.auth",
	"z.lang",
	"z.tz",
}

// Client submits simulation results over HTTP. Submissions are rate
// limited and authenticated with the stored session cookies.
type Client struct {
	logger  *zap.Logger
	cfg     config.DeliveryConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg config.DeliveryConfig, logger *zap.Logger) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		logger:  logger.Named("delivery"),
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

type requestBody struct {
	SimID   string  `json:"sim_id"`
	IFID    string  `json:"if_id"`
	APIData apiData `json:"api_data"`
}

type apiData struct {
	Target string         `json:"target"`
	Status payload.Status `json:"status"`
	Data   apiResult      `json:"data"`
}

type apiResult struct {
	Result []payload.Entry `json:"result"`
}

// SendResults posts one payload to the backend. An empty payload ships as
// an explicit failure entry so the backend never records a silent run. The
// backend's own 500/"timeout" hiccup is swallowed; every other non-2xx is
// an error.
func (c *Client) SendResults(ctx context.Context, simID, ifID string, p *payload.Payload, session map[string]string) ([]byte, error) {
	if p.Len() == 0 {
		p.AddFailure(fmt.Sprintf("%s: resultado vazio", p.Bank()))
	}

	entries := p.Entries()
	body := requestBody{
		SimID: simID,
		IFID:  ifID,
		APIData: apiData{
			Target: string(p.Bank()),
			Status: p.Status(),
			Data:   apiResult{Result: entries},
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding delivery body: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + insertPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("Cache-Control", "no-cache")
	if cookie := BuildCookieHeader(session); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	c.logger.Info("Submitting simulation results.",
		zap.String("sim_id", simID), zap.String("if_id", ifID),
		zap.Int("entries", len(entries)), zap.String("status", string(p.Status())))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("delivery request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := decodeBody(resp)
	if err != nil {
		return nil, fmt.Errorf("reading delivery response: %w", err)
	}

	log := c.logger.With(
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		log.Info("Results accepted by backend.")
		return respBody, nil
	}

	if resp.StatusCode == http.StatusInternalServerError &&
		strings.Contains(strings.ToLower(string(respBody)), "timeout") {
		log.Warn("delivery.swallowed",
			zap.String("reason", "backend 500 with timeout body"))
		return respBody, nil
	}

	return nil, fmt.Errorf("backend rejected delivery: status %d: %s",
		resp.StatusCode, truncate(string(respBody), 300))
}

// BuildCookieHeader assembles the Cookie header value: preferred names
// first in their fixed order, everything else alphabetically.
func BuildCookieHeader(session map[string]string) string {
	if len(session) == 0 {
		return ""
	}
	preferred := make(map[string]bool, len(cookieOrder))
	parts := make([]string, 0, len(session))
	for _, name := range cookieOrder {
		preferred[name] = true
		if v := session[name]; v != "" {
			parts = append(parts, name+"="+v)
		}
	}
	rest := make([]string, 0, len(session))
	for name, v := range session {
		if v != "" && !preferred[name] {
			rest = append(rest, name+"="+v)
		}
	}
	sort.Strings(rest)
	return strings.Join(append(parts, rest...), "; ")
}

// decodeBody reads the response body honoring its Content-Encoding.
func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(io.LimitReader(reader, 4<<20))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
