// File: internal/auth/auth.go

// Package auth holds the backend session: cookies captured from a logged
// in backoffice tab, the auth token, and its expiry. It answers whether a
// simulation run may talk to the backend at all.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/config"
	"github.com/Abensoft-Ltda/plugin-simulacao-sub000/internal/store"
)

const validatePath = "api/model/sl_cad_interacao_simulacao/get/acessos_agrupados_json"

// sessionCookieNames are the exact cookie names that make up a session.
var sessionCookieNames = map[string]bool{
	"cotonic-sid":  true,
	"z.auth":       true,
	"z.lang":       true,
	"z.tz":         true,
	"timezone":     true,
	"cf_clearance": true,
}

// sessionCookiePrefixes match the analytics cookies whose names carry a
// site-specific numeric suffix.
var sessionCookiePrefixes = []string{"_hjSession_", "_hjSessionUser_"}

// Data is the persisted authentication state.
type Data struct {
	AuthToken   string            `json:"authToken"`
	AuthExpiry  int64             `json:"authExpiry"`
	SessionData map[string]string `json:"sessionData"`
}

// Service validates and persists the backend session.
type Service struct {
	logger *zap.Logger
	cfg    config.DeliveryConfig
	dev    bool
	store  *store.Store
	http   *http.Client
}

func NewService(cfg config.DeliveryConfig, dev bool, st *store.Store, logger *zap.Logger) *Service {
	return &Service{
		logger: logger.Named("auth"),
		cfg:    cfg,
		dev:    dev,
		store:  st,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Store persists captured auth data. When the token is a decodable JWT its
// exp claim wins over the default 24h window; the token is never verified
// here, only inspected.
func (s *Service) Store(data Data) error {
	if data.AuthExpiry == 0 {
		data.AuthExpiry = time.Now().Add(24 * time.Hour).UnixMilli()
		if exp, ok := tokenExpiry(data.AuthToken); ok {
			data.AuthExpiry = exp.UnixMilli()
		}
	}
	if err := s.store.Set(store.KeySessionData, data.SessionData); err != nil {
		return err
	}
	if err := s.store.Set(store.KeyAuthToken, data.AuthToken); err != nil {
		return err
	}
	if err := s.store.Set(store.KeyAuthExpiry, data.AuthExpiry); err != nil {
		return err
	}
	s.logger.Info("Auth data stored.",
		zap.Int("cookies", len(data.SessionData)),
		zap.Time("expiry", time.UnixMilli(data.AuthExpiry)))
	return nil
}

// tokenExpiry reads the exp claim of a JWT without verifying it.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// StoredData loads the persisted auth state. ok is false when no session
// was ever stored.
func (s *Service) StoredData() (Data, bool) {
	var data Data
	hasSession, err := s.store.Get(store.KeySessionData, &data.SessionData)
	if err != nil {
		s.logger.Warn("Stored session is unreadable.", zap.Error(err))
		return Data{}, false
	}
	if _, err := s.store.Get(store.KeyAuthToken, &data.AuthToken); err != nil {
		return Data{}, false
	}
	if _, err := s.store.Get(store.KeyAuthExpiry, &data.AuthExpiry); err != nil {
		return Data{}, false
	}
	return data, hasSession && data.AuthToken != ""
}

// SessionData returns the stored cookies for delivery, possibly empty.
func (s *Service) SessionData() map[string]string {
	data, ok := s.StoredData()
	if !ok {
		return nil
	}
	return data.SessionData
}

// Clean removes the persisted auth state.
func (s *Service) Clean() error {
	return s.store.Delete(store.KeySessionData, store.KeyAuthToken, store.KeyAuthExpiry)
}

// Validate checks the stored session against the backend. Development mode
// always passes. An expired or rejected session is cleaned so the next run
// starts from a fresh login.
func (s *Service) Validate(ctx context.Context) bool {
	if s.dev {
		s.logger.Info("Development mode, skipping auth validation.")
		return true
	}

	data, ok := s.StoredData()
	if !ok {
		s.logger.Info("No stored auth data.")
		return false
	}
	if data.AuthExpiry > 0 && time.Now().UnixMilli() > data.AuthExpiry {
		s.logger.Info("Auth token expired.")
		if err := s.Clean(); err != nil {
			s.logger.Warn("Failed to clean expired auth data.", zap.Error(err))
		}
		return false
	}

	url := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/" + validatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.logger.Warn("Building validation request failed.", zap.Error(err))
		return false
	}
	req.Header.Set("Accept", "application/json")
	if cookie := joinCookies(data.SessionData); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn("Auth validation request failed.", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		s.logger.Info("Auth session validated.")
		return true
	}
	s.logger.Info("Auth session rejected by backend.", zap.Int("status", resp.StatusCode))
	if err := s.Clean(); err != nil {
		s.logger.Warn("Failed to clean rejected auth data.", zap.Error(err))
	}
	return false
}

func joinCookies(session map[string]string) string {
	parts := make([]string, 0, len(session))
	for name, value := range session {
		if value != "" {
			parts = append(parts, name+"="+value)
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// CaptureFromTab reads the session cookies out of a logged-in backoffice
// tab and persists them. It fails when the core session cookies are not
// present yet, i.e. the user has not finished logging in.
func (s *Service) CaptureFromTab(ctx context.Context, tab interface {
	Run(context.Context, ...chromedp.Action) error
}) error {
	var cookies []*network.Cookie
	err := tab.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("reading tab cookies: %w", err)
	}

	session := make(map[string]string)
	for _, c := range cookies {
		if c.Value == "" {
			continue
		}
		if sessionCookieNames[c.Name] {
			session[c.Name] = c.Value
			continue
		}
		for _, prefix := range sessionCookiePrefixes {
			if strings.HasPrefix(c.Name, prefix) {
				session[c.Name] = c.Value
				break
			}
		}
	}

	if session["cotonic-sid"] == "" || session["z.auth"] == "" {
		return fmt.Errorf("session cookies not found, login not completed")
	}
	return s.Store(Data{AuthToken: session["z.auth"], SessionData: session})
}
