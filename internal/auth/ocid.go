package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/edubounty/edubounty/internal/interfaces"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/storage"
	"github.com/google/uuid"
)

const (
	KeyAuthInProgress = "auth_in_progress"
	KeyAuthCompleted  = "auth_completed"
	keyAuthRequest    = "auth_request"
	keyAuthSession    = "auth_session"
)

var (
	ErrInvalidState            = errors.New("login state does not match, start the login again")
	ErrTokenExchange           = errors.New("token exchange failed")
	ErrInvalidToken            = errors.New("invalid id token")
	ErrVerificationKeyRequired = errors.New("id token verification key is required outside sandbox mode")
)

type Config struct {
	ClientID        string
	RedirectURI     string
	ReferralCode    string
	Scope           string
	AuthURL         string
	TokenURL        string
	SandboxMode     bool
	VerificationKey string
}

// Claims are the OCID id token claims
type Claims struct {
	jwt.StandardClaims
	OCId       string `json:"edu_username,omitempty"`
	EthAddress string `json:"eth_address,omitempty"`
}

type AuthState struct {
	IsAuthenticated bool    `json:"isAuthenticated"`
	InProgress      bool    `json:"inProgress"`
	JustLoggedIn    bool    `json:"justLoggedIn"`
	OCId            string  `json:"OCId,omitempty"`
	EthAddress      string  `json:"ethAddress,omitempty"`
	UserInfo        *Claims `json:"userInfo,omitempty"`
}

// authRequest is kept between Login and Callback
type authRequest struct {
	State        string `json:"state"`
	CodeVerifier string `json:"codeVerifier"`
}

type tokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// OCIDAuth runs the Open Campus ID authorization code flow with PKCE
type OCIDAuth struct {
	cfg       Config
	verifyKey *rsa.PublicKey

	client *http.Client
	store  storage.Store
	log    interfaces.ILogger
}

func NewOCIDAuth(cfg Config, client *http.Client, store storage.Store, log interfaces.ILogger) (*OCIDAuth, error) {
	a := &OCIDAuth{cfg: cfg, client: client, store: store, log: log}
	if a.client == nil {
		a.client = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.VerificationKey != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.VerificationKey))
		if err != nil {
			return nil, fmt.Errorf("invalid ocid verification key: %w", err)
		}
		a.verifyKey = key
	}
	return a, nil
}

// Login starts a login and returns the URL the user has to open
func (a *OCIDAuth) Login(ctx context.Context) (string, error) {
	verifier, err := newCodeVerifier()
	if err != nil {
		return "", err
	}
	req := authRequest{State: uuid.NewString(), CodeVerifier: verifier}
	if err := storage.SetJSON(ctx, a.store, keyAuthRequest, req); err != nil {
		return "", err
	}
	if err := a.store.Set(ctx, KeyAuthInProgress, "true"); err != nil {
		return "", err
	}

	challenge := sha256.Sum256([]byte(verifier))
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", a.cfg.ClientID)
	params.Set("redirect_uri", a.cfg.RedirectURI)
	params.Set("scope", a.cfg.Scope)
	params.Set("state", req.State)
	params.Set("code_challenge", base64.RawURLEncoding.EncodeToString(challenge[:]))
	params.Set("code_challenge_method", "S256")
	if a.cfg.ReferralCode != "" {
		params.Set("ref", a.cfg.ReferralCode)
	}

	sep := "?"
	if strings.Contains(a.cfg.AuthURL, "?") {
		sep = "&"
	}
	a.log.Debugf("login started, state %s", req.State)
	return a.cfg.AuthURL + sep + params.Encode(), nil
}

// Callback completes the login started by Login. The in-progress flag is cleared
// whatever the outcome.
func (a *OCIDAuth) Callback(ctx context.Context, code string, state string) (AuthState, error) {
	defer func() {
		if err := a.store.Delete(ctx, KeyAuthInProgress); err != nil {
			a.log.Warnf("failed to clear %s: %s", KeyAuthInProgress, err)
		}
	}()

	var req authRequest
	ok, err := storage.GetJSON(ctx, a.store, keyAuthRequest, &req)
	if err != nil {
		return AuthState{}, err
	}
	if !ok || state == "" || req.State != state {
		return AuthState{}, ErrInvalidState
	}
	if err := a.store.Delete(ctx, keyAuthRequest); err != nil {
		return AuthState{}, err
	}

	idToken, err := a.exchangeCode(ctx, code, req.CodeVerifier)
	if err != nil {
		return AuthState{}, err
	}
	claims, err := a.parseIDToken(idToken)
	if err != nil {
		return AuthState{}, err
	}

	session := AuthState{
		IsAuthenticated: true,
		OCId:            claims.OCId,
		EthAddress:      claims.EthAddress,
		UserInfo:        claims,
	}
	if err := storage.SetJSON(ctx, a.store, keyAuthSession, session); err != nil {
		return AuthState{}, err
	}
	if err := a.store.Set(ctx, KeyAuthCompleted, "true"); err != nil {
		return AuthState{}, err
	}

	a.log.Infof("logged in as %s", claims.OCId)
	session.JustLoggedIn = true
	return session, nil
}

func (a *OCIDAuth) Logout(ctx context.Context) error {
	for _, key := range []string{keyAuthSession, keyAuthRequest, KeyAuthInProgress, KeyAuthCompleted} {
		if err := a.store.Delete(ctx, key); err != nil {
			return err
		}
	}
	a.log.Infof("logged out")
	return nil
}

// State returns the current login state. JustLoggedIn is reported once after a login.
func (a *OCIDAuth) State(ctx context.Context) (AuthState, error) {
	var session AuthState
	if _, err := storage.GetJSON(ctx, a.store, keyAuthSession, &session); err != nil {
		return AuthState{}, err
	}
	if session.UserInfo != nil && session.UserInfo.Valid() != nil {
		a.log.Infof("ocid session expired")
		session = AuthState{}
		if err := a.store.Delete(ctx, keyAuthSession); err != nil {
			return AuthState{}, err
		}
	}

	_, inProgress, err := a.store.Get(ctx, KeyAuthInProgress)
	if err != nil {
		return AuthState{}, err
	}
	session.InProgress = inProgress

	_, completed, err := a.store.Get(ctx, KeyAuthCompleted)
	if err != nil {
		return AuthState{}, err
	}
	if completed {
		session.JustLoggedIn = session.IsAuthenticated
		if err := a.store.Delete(ctx, KeyAuthCompleted); err != nil {
			return AuthState{}, err
		}
	}
	return session, nil
}

func (a *OCIDAuth) exchangeCode(ctx context.Context, code string, verifier string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", a.cfg.RedirectURI)
	form.Set("client_id", a.cfg.ClientID)
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		return "", lib.WrapError(ErrTokenExchange, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", lib.WrapError(ErrTokenExchange, err)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", lib.WrapError(ErrTokenExchange, fmt.Errorf("status %d: %s", res.StatusCode, err))
	}
	if res.StatusCode != http.StatusOK || token.Error != "" {
		return "", lib.WrapError(ErrTokenExchange, fmt.Errorf("status %d: %s %s", res.StatusCode, token.Error, token.Description))
	}
	if token.IDToken == "" {
		return "", lib.WrapError(ErrTokenExchange, errors.New("response has no id_token"))
	}
	return token.IDToken, nil
}

func (a *OCIDAuth) parseIDToken(idToken string) (*Claims, error) {
	claims := &Claims{}

	if a.verifyKey != nil {
		_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method %s", t.Header["alg"])
			}
			return a.verifyKey, nil
		})
		if err != nil {
			return nil, lib.WrapError(ErrInvalidToken, err)
		}
	} else {
		if !a.cfg.SandboxMode {
			return nil, ErrVerificationKeyRequired
		}
		if _, _, err := new(jwt.Parser).ParseUnverified(idToken, claims); err != nil {
			return nil, lib.WrapError(ErrInvalidToken, err)
		}
		if err := claims.Valid(); err != nil {
			return nil, lib.WrapError(ErrInvalidToken, err)
		}
	}

	if a.cfg.ClientID != "" && claims.Audience != "" && !claims.VerifyAudience(a.cfg.ClientID, false) {
		return nil, lib.WrapError(ErrInvalidToken, fmt.Errorf("audience %s", claims.Audience))
	}
	return claims, nil
}

func newCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
