package remoteapi

import (
	"encoding/json"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/cos"
	"github.com/draw-health/gateway/internal/model"
)

// Client wraps a fasthttp.Client with the bearer-token lifecycle from
// spec.md §4.6: refresh-before-expiry, atomic token update in the catalog,
// single-retry-on-401.
//
// Grounded on the teacher's go.mod carrying valyala/fasthttp as its HTTP
// transport of choice; no teacher package does bearer-token refresh
// (aistore's inter-node auth isn't in this pack's retrieval), so the
// refresh/retry state machine itself is built directly from spec.md §4.6.
type Client struct {
	http   *fasthttp.Client
	store  *catalog.Store
	cipher *TokenCipher
}

func NewClient(store *catalog.Store, cipher *TokenCipher) *Client {
	return &Client{
		http:   &fasthttp.Client{},
		store:  store,
		cipher: cipher,
	}
}

// EnsureToken implements spec.md §4.6's "before any request requiring
// auth" check: if now >= token_expiry (or expiry unknown), refresh. Returns
// the plaintext bearer token to attach as Authorization: Bearer <token>.
func (c *Client) EnsureToken(now time.Time) (string, error) {
	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return "", err
	}
	if cfg.BaseURL == "" || cfg.TokenRefreshEndpoint == "" {
		return "", cos.NewError(cos.ConfigurationMissing, "base_url/token_refresh_endpoint", nil)
	}
	if now.Before(cfg.TokenExpiry) && len(cfg.BearerTokenEncrypted) > 0 {
		return c.cipher.Open(cfg.BearerTokenEncrypted)
	}
	return c.refresh(cfg, now)
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    string `json:"expires_at"`
}

func (c *Client) refresh(cfg *model.SystemConfiguration, now time.Time) (string, error) {
	refreshToken, err := c.cipher.Open(cfg.RefreshTokenEncrypted)
	if err != nil {
		return "", cos.Wrap(cos.AuthenticationFailed, "refresh_token", err, "decrypt stored refresh token")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(cfg.BaseURL + cfg.TokenRefreshEndpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.Set("Authorization", "Bearer "+refreshToken)

	if err := c.http.DoTimeout(req, resp, 30*time.Second); err != nil {
		return "", cos.Wrap(cos.NetworkTransient, "token_refresh", err, "refresh request")
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", cos.NewError(cos.AuthenticationFailed, "token_refresh", statusError(resp.StatusCode()))
	}

	var rr refreshResponse
	if err := json.Unmarshal(resp.Body(), &rr); err != nil {
		return "", cos.Wrap(cos.AuthenticationFailed, "token_refresh", err, "decode refresh response")
	}

	expiry := resolveExpiry(rr, now)

	bearerEnc, err := c.cipher.Seal(rr.AccessToken)
	if err != nil {
		return "", err
	}
	cfg.BearerTokenEncrypted = bearerEnc
	cfg.TokenExpiry = expiry
	if rr.RefreshToken != "" {
		refreshEnc, err := c.cipher.Seal(rr.RefreshToken)
		if err != nil {
			return "", err
		}
		cfg.RefreshTokenEncrypted = refreshEnc
	}
	if err := c.store.PutSystemConfiguration(cfg); err != nil {
		return "", err
	}
	return rr.AccessToken, nil
}

// resolveExpiry prefers the server's explicit expires_at; falls back to
// now+expires_in; falls back to reading "exp" out of the access token if
// it happens to be a JWT (spec.md §4.6 doesn't mandate a JWT, but the
// upstream auto-segmentation service may issue one).
func resolveExpiry(rr refreshResponse, now time.Time) time.Time {
	if rr.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, rr.ExpiresAt); err == nil {
			return t
		}
	}
	if rr.ExpiresIn > 0 {
		return now.Add(time.Duration(rr.ExpiresIn) * time.Second)
	}
	if exp, ok := jwtExpiry(rr.AccessToken); ok {
		return exp
	}
	return now // expiry unknown: treat as already expired, forcing refresh next call
}

func jwtExpiry(token string) (time.Time, bool) {
	parser := &jwt.Parser{}
	claims := jwt.MapClaims{}
	// ParseUnverified: the server's signature was already trusted over TLS
	// at refresh time; here we only need the exp claim, not validation.
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0), true
}

// Do executes req with the current bearer token attached, and on a 401
// refreshes exactly once and retries exactly once (spec.md §4.6).
func (c *Client) Do(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error {
	token, err := c.EnsureToken(time.Now())
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return cos.Wrap(cos.NetworkTransient, string(req.Header.RequestURI()), err, "request")
	}
	if resp.StatusCode() != fasthttp.StatusUnauthorized {
		return nil
	}

	cfg, err := c.store.GetSystemConfiguration()
	if err != nil {
		return err
	}
	retryToken, err := c.refresh(cfg, time.Now())
	if err != nil {
		return cos.Wrap(cos.AuthenticationFailed, "401-retry", err, "refresh after 401")
	}
	req.Header.Set("Authorization", "Bearer "+retryToken)
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return cos.Wrap(cos.NetworkTransient, string(req.Header.RequestURI()), err, "retry request")
	}
	if resp.StatusCode() == fasthttp.StatusUnauthorized {
		return cos.NewError(cos.AuthenticationFailed, "401-retry", errRepeated401)
	}
	return nil
}

func statusError(code int) error {
	return errors.Errorf("unexpected HTTP status %d %s", code, fasthttp.StatusMessage(code))
}

var errRepeated401 = errors.New("second consecutive 401 after token refresh")
