// Package transport provides core.TransportFactory implementations: the Gmail API, a
// logging transport for dry runs, and a per-sender rate limiting decorator.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
	apperrors "github.com/target/bulkmailer/internal/errors"
)

// Gmail API defaults.
const (
	DefaultGmailAPIBase = "https://gmail.googleapis.com"
	DefaultGmailAuthURL = "https://accounts.google.com/o/oauth2/auth"
	DefaultTokenURL     = "https://oauth2.googleapis.com/token"
	GmailSendScope      = "https://www.googleapis.com/auth/gmail.send"

	maxErrorBodyBytes = 2 * 1024
)

// GmailOptions configures GmailFactory.
type GmailOptions struct {
	Senders core.SenderRepository // Required
	// ClientID and ClientSecret are used when the stored token does not carry its own.
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Logger       *slog.Logger
	// APIBase and TokenURL override the Google endpoints.
	APIBase  string
	TokenURL string
}

// GmailFactory builds Gmail API transports from the stored credentials of each sender.
type GmailFactory struct {
	senders      core.SenderRepository
	clientID     string
	clientSecret string
	http         *http.Client
	logger       *slog.Logger
	apiBase      string
	tokenURL     string
}

var _ core.TransportFactory = (*GmailFactory)(nil)

// NewGmailFactory constructs a GmailFactory.
func NewGmailFactory(opts GmailOptions) (*GmailFactory, error) {
	if opts.Senders == nil {
		return nil, errors.New("SenderRepository is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = DefaultGmailAPIBase
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &GmailFactory{
		senders:      opts.Senders,
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		http:         hc,
		logger:       logger.With("component", "gmail_transport"),
		apiBase:      apiBase,
		tokenURL:     tokenURL,
	}, nil
}

// storedToken is the authorized-user token document kept in sender_accounts.token_json.
// Both the Google client library field names and the oauth2 wire names are accepted.
type storedToken struct {
	Token        string   `json:"token,omitempty"`
	AccessToken  string   `json:"access_token,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	TokenURI     string   `json:"token_uri,omitempty"`
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	Expiry       string   `json:"expiry,omitempty"`
}

func parseStoredToken(raw []byte) (*storedToken, *oauth2.Token, error) {
	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, nil, fmt.Errorf("decode token: %w", err)
	}
	access := st.Token
	if access == "" {
		access = st.AccessToken
	}
	if access == "" && st.RefreshToken == "" {
		return nil, nil, errors.New("token has neither access nor refresh token")
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: st.RefreshToken, TokenType: "Bearer"}
	if st.Expiry != "" {
		exp, err := time.Parse(time.RFC3339, st.Expiry)
		if err != nil {
			return nil, nil, fmt.Errorf("parse token expiry: %w", err)
		}
		tok.Expiry = exp
	}
	return &st, tok, nil
}

// ForSender loads the sender's token, refreshes it when expired and returns a transport.
// Every failure here is an initialization error.
func (f *GmailFactory) ForSender(ctx context.Context, tenant model.Tenant, senderEmail string) (core.Transport, error) {
	acct, err := f.senders.Get(ctx, tenant, senderEmail)
	if err != nil {
		return nil, apperrors.NewDelivery(apperrors.ErrInitialization, "load sender "+senderEmail, err)
	}
	st, tok, err := parseStoredToken(acct.TokenJSON)
	if err != nil {
		return nil, apperrors.NewDelivery(apperrors.ErrInitialization, "sender token", err)
	}

	cfg := &oauth2.Config{
		ClientID:     firstNonEmpty(st.ClientID, f.clientID),
		ClientSecret: firstNonEmpty(st.ClientSecret, f.clientSecret),
		Endpoint: oauth2.Endpoint{
			AuthURL:  DefaultGmailAuthURL,
			TokenURL: firstNonEmpty(st.TokenURI, f.tokenURL),
		},
		Scopes: st.Scopes,
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{GmailSendScope}
	}

	// The token source outlives this call, so it must not inherit ctx cancellation.
	base := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, f.http)
	src := &persistingSource{
		base:    cfg.TokenSource(base, tok),
		stored:  *st,
		last:    tok.AccessToken,
		save:    func(ctx context.Context, raw []byte) error { return f.senders.UpdateToken(ctx, tenant, acct.Email, raw) },
		logger:  f.logger.With("sender", acct.Email),
		timeout: 10 * time.Second,
	}
	if _, err := src.Token(); err != nil {
		return nil, apperrors.NewDelivery(apperrors.ErrInitialization, "refresh sender token", err)
	}

	return &gmailTransport{
		client:  oauth2.NewClient(base, oauth2.ReuseTokenSource(nil, src)),
		sendURL: f.apiBase + "/gmail/v1/users/me/messages/send",
	}, nil
}

// persistingSource writes refreshed tokens back to the sender account.
type persistingSource struct {
	base    oauth2.TokenSource
	save    func(ctx context.Context, raw []byte) error
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	stored storedToken
	last   string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken
	s.stored.Token = tok.AccessToken
	s.stored.AccessToken = ""
	if tok.RefreshToken != "" {
		s.stored.RefreshToken = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		s.stored.Expiry = tok.Expiry.UTC().Format(time.RFC3339)
	}
	raw, err := json.Marshal(s.stored)
	if err != nil {
		s.logger.Warn("encode refreshed token", "error", err)
		return tok, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.save(ctx, raw); err != nil {
		s.logger.Warn("persist refreshed token", "error", err)
	}
	return tok, nil
}

type gmailTransport struct {
	client  *http.Client
	sendURL string
}

type gmailSendResponse struct {
	ID string `json:"id"`
}

// Send posts the raw message to users.messages.send and returns the Gmail message id.
func (t *gmailTransport) Send(ctx context.Context, msg *model.Message) (string, error) {
	body, err := json.Marshal(map[string]string{"raw": base64.URLEncoding.EncodeToString(msg.Raw)})
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.sendURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", apperrors.NewDelivery(apperrors.ErrTransport, "gmail send", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", apperrors.NewDelivery(apperrors.ErrTransport, "gmail send",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))))
	}
	var out gmailSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.NewDelivery(apperrors.ErrTransport, "gmail send", fmt.Errorf("decode response: %w", err))
	}
	return out.ID, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
