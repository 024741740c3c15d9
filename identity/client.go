package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/ugate-admin/internal/errors"
	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/users"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the production identity provider
const DefaultBaseURL = "https://auth-service.pynfi.com/api"

// maxBodySize bounds every response read
const maxBodySize = 1 << 20

// Default error messages, used when the provider does not explain a failure
const (
	msgLoginFailed    = "Échec de la connexion"
	msgRefreshFailed  = "Échec du rafraîchissement du token"
	msgMeFailed       = "Token invalide ou expiré"
	msgRegisterFailed = "Échec de la création du compte"
	msgForgotFailed   = "Échec de l'envoi du code"
	msgVerifyFailed   = "Code invalide"
	msgResetFailed    = "Échec de la réinitialisation"
	msgRolesFailed    = "Échec de la récupération des rôles"
	msgRoleCreate     = "Échec de la création du rôle"
	msgRoleAssign     = "Échec de l'attribution du rôle"
)

// Client talks to the identity provider. It carries no session state: every
// bearer call takes the access token explicitly.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// New creates a Client for baseURL (DefaultBaseURL when empty)
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("[identity.New] invalid base URL %q", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the provider base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges credentials for a token pair and the user profile
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	if strings.TrimSpace(creds.Identifier) == "" {
		return nil, apperrors.ErrMissingIdentifier
	}
	if creds.Password == "" {
		return nil, apperrors.ErrMissingPassword
	}

	log.Info().Str("identifier", creds.Identifier).Msg("login attempt")

	var resp LoginResponse
	if err := c.call(ctx, http.MethodPost, "/auth/login", "", creds, &resp, msgLoginFailed); err != nil {
		log.Err(err).Str("identifier", creds.Identifier).Msg("login failed")
		return nil, err
	}
	if !resp.Valid() {
		return nil, fmt.Errorf("[Client.Login] response carries no access token")
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a new pair
func (c *Client) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	if refreshToken == "" {
		return token.Pair{}, apperrors.ErrNoRefreshToken
	}

	var pair token.Pair
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.call(ctx, http.MethodPost, "/auth/refresh", "", body, &pair, msgRefreshFailed); err != nil {
		return token.Pair{}, err
	}
	if !pair.Valid() {
		return token.Pair{}, fmt.Errorf("[Client.Refresh] response carries no access token")
	}
	return pair, nil
}

// Me resolves the profile that owns accessToken
func (c *Client) Me(ctx context.Context, accessToken string) (*users.Profile, error) {
	var profile users.Profile
	if err := c.call(ctx, http.MethodGet, "/auth/me", accessToken, nil, &profile, msgMeFailed); err != nil {
		return nil, err
	}
	return &profile, nil
}

// Register creates an account. The provider expects multipart/form-data with
// the JSON document in a part named "data".
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	if req.Service == "" {
		req.Service = RegisterService
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{string(users.RoleAdmin)}
	}

	doc, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("[Client.Register] marshal: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="data"; filename="blob"`)
	header.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("[Client.Register] create part: %w", err)
	}
	if _, err := part.Write(doc); err != nil {
		return nil, fmt.Errorf("[Client.Register] write part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("[Client.Register] close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/register", &buf)
	if err != nil {
		return nil, fmt.Errorf("[Client.Register] new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	var resp RegisterResponse
	if err := c.send(httpReq, &resp, msgRegisterFailed); err != nil {
		log.Err(err).Str("email", req.Email).Msg("registration failed")
		return nil, err
	}
	log.Info().Str("email", req.Email).Msg("account registered")
	return &resp, nil
}

// ForgotPassword asks the provider to email a reset code
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "email is required")
	}
	return c.call(ctx, http.MethodPost, "/password/forgot", "", map[string]string{"email": email}, nil, msgForgotFailed)
}

// VerifyResetCode checks a reset code before the new password is chosen
func (c *Client) VerifyResetCode(ctx context.Context, email, code string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "email and code are required")
	}
	body := map[string]string{"email": email, "code": code}
	return c.call(ctx, http.MethodPost, "/password/verify", "", body, nil, msgVerifyFailed)
}

// ResetPassword sets a new password using a verified code
func (c *Client) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "email and code are required")
	}
	if len(newPassword) < 8 {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "password must be at least 8 characters long")
	}
	body := map[string]string{"email": email, "code": code, "newPassword": newPassword}
	return c.call(ctx, http.MethodPost, "/password/reset", "", body, nil, msgResetFailed)
}

// ListRoles returns the roles the provider knows
func (c *Client) ListRoles(ctx context.Context, accessToken string) ([]Role, error) {
	var roles []Role
	if err := c.call(ctx, http.MethodGet, "/roles", accessToken, nil, &roles, msgRolesFailed); err != nil {
		return nil, err
	}
	return roles, nil
}

// CreateRole creates a role
func (c *Client) CreateRole(ctx context.Context, accessToken, name string) (*Role, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidRequest, "role name is required")
	}
	var role Role
	if err := c.call(ctx, http.MethodPost, "/roles", accessToken, map[string]string{"name": name}, &role, msgRoleCreate); err != nil {
		return nil, err
	}
	return &role, nil
}

// AssignRole grants role to userID
func (c *Client) AssignRole(ctx context.Context, accessToken, userID string, role users.RoleType) error {
	if strings.TrimSpace(userID) == "" || role == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "user id and role are required")
	}
	path := "/users/" + url.PathEscape(userID) + "/roles/" + url.PathEscape(string(role))
	return c.call(ctx, http.MethodPost, path, accessToken, nil, nil, msgRoleAssign)
}

// call sends a JSON request and decodes a JSON response into out (if non-nil)
func (c *Client) call(ctx context.Context, method, path, accessToken string, in, out any, fallback string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", token.BearerType+" "+accessToken)
	}
	return c.send(req, out, fallback)
}

func (c *Client) send(req *http.Request, out any, fallback string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading %s %s response: %w", req.Method, req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.FromResponse(resp.StatusCode, data, fallback)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func validateRegistration(req RegisterRequest) error {
	switch {
	case strings.TrimSpace(req.Username) == "":
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "username is required")
	case !strings.Contains(req.Email, "@") || strings.ContainsAny(req.Email, " \t"):
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "invalid email format")
	case len(req.Password) < 8:
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "password must be at least 8 characters long")
	}
	return nil
}

// IsUnauthorized reports whether err is a 401 from the provider
func IsUnauthorized(err error) bool {
	var apiErr *apperrors.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}
