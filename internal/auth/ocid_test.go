package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/edubounty/edubounty/internal/lib"
	"github.com/edubounty/edubounty/internal/storage"
	"github.com/stretchr/testify/require"
)

type tokenServer struct {
	*httptest.Server
	idToken  string
	lastForm url.Values
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		ts.lastForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id_token": ts.idToken, "access_token": "at"})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testClaims() *Claims {
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Audience:  "edubounty-app",
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
		OCId:       "alice.edu",
		EthAddress: "0xabc0000000000000000000000000000000000001",
	}
}

func newTestAuth(t *testing.T, ts *tokenServer, sandbox bool, verificationKey string) (*OCIDAuth, storage.Store) {
	store := storage.NewMemoryStore()
	a, err := NewOCIDAuth(Config{
		ClientID:        "edubounty-app",
		RedirectURI:     "http://localhost:8080/auth/callback",
		ReferralCode:    "REF1",
		Scope:           "openid profile email",
		AuthURL:         "https://auth.example.com/login",
		TokenURL:        ts.URL,
		SandboxMode:     sandbox,
		VerificationKey: verificationKey,
	}, ts.Client(), store, lib.NewTestLogger())
	require.NoError(t, err)
	return a, store
}

func loginState(t *testing.T, loginURL string) url.Values {
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	return u.Query()
}

func TestLoginBuildsAuthorizationURL(t *testing.T) {
	ts := newTokenServer(t)
	a, store := newTestAuth(t, ts, true, "")
	ctx := context.Background()

	loginURL, err := a.Login(ctx)
	require.NoError(t, err)

	q := loginState(t, loginURL)
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "edubounty-app", q.Get("client_id"))
	require.Equal(t, "http://localhost:8080/auth/callback", q.Get("redirect_uri"))
	require.Equal(t, "openid profile email", q.Get("scope"))
	require.Equal(t, "REF1", q.Get("ref"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.NotEmpty(t, q.Get("state"))

	inProgress, ok, err := store.Get(ctx, KeyAuthInProgress)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "true", inProgress)

	state, err := a.State(ctx)
	require.NoError(t, err)
	require.True(t, state.InProgress)
	require.False(t, state.IsAuthenticated)
}

func TestCallbackSandbox(t *testing.T) {
	ts := newTokenServer(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims()).SignedString([]byte("unknown"))
	require.NoError(t, err)
	ts.idToken = token

	a, store := newTestAuth(t, ts, true, "")
	ctx := context.Background()

	loginURL, err := a.Login(ctx)
	require.NoError(t, err)
	q := loginState(t, loginURL)

	state, err := a.Callback(ctx, "good-code", q.Get("state"))
	require.NoError(t, err)
	require.True(t, state.IsAuthenticated)
	require.Equal(t, "alice.edu", state.OCId)
	require.Equal(t, "0xabc0000000000000000000000000000000000001", state.EthAddress)

	verifier := ts.lastForm.Get("code_verifier")
	challenge := sha256.Sum256([]byte(verifier))
	require.Equal(t, q.Get("code_challenge"), base64.RawURLEncoding.EncodeToString(challenge[:]))

	_, ok, err := store.Get(ctx, KeyAuthInProgress)
	require.NoError(t, err)
	require.False(t, ok)

	current, err := a.State(ctx)
	require.NoError(t, err)
	require.True(t, current.IsAuthenticated)
	require.True(t, current.JustLoggedIn)

	current, err = a.State(ctx)
	require.NoError(t, err)
	require.True(t, current.IsAuthenticated)
	require.False(t, current.JustLoggedIn)

	require.NoError(t, a.Logout(ctx))
	current, err = a.State(ctx)
	require.NoError(t, err)
	require.False(t, current.IsAuthenticated)
}

func TestCallbackVerifiesSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	ts := newTokenServer(t)
	a, _ := newTestAuth(t, ts, false, pubPEM)
	ctx := context.Background()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims()).SignedString(key)
	require.NoError(t, err)
	ts.idToken = signed

	q := loginState(t, urlOf(a.Login(ctx)))
	state, err := a.Callback(ctx, "good-code", q.Get("state"))
	require.NoError(t, err)
	require.Equal(t, "alice.edu", state.OCId)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims()).SignedString([]byte("secret"))
	require.NoError(t, err)
	ts.idToken = forged

	q = loginState(t, urlOf(a.Login(ctx)))
	_, err = a.Callback(ctx, "good-code", q.Get("state"))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestCallbackFailures(t *testing.T) {
	ts := newTokenServer(t)
	ctx := context.Background()

	t.Run("state mismatch", func(t *testing.T) {
		a, store := newTestAuth(t, ts, true, "")
		_, err := a.Login(ctx)
		require.NoError(t, err)

		_, err = a.Callback(ctx, "good-code", "forged")
		require.ErrorIs(t, err, ErrInvalidState)
		_, ok, _ := store.Get(ctx, KeyAuthInProgress)
		require.False(t, ok)
	})

	t.Run("token exchange", func(t *testing.T) {
		a, _ := newTestAuth(t, ts, true, "")
		q := loginState(t, urlOf(a.Login(ctx)))

		_, err := a.Callback(ctx, "bad-code", q.Get("state"))
		require.ErrorIs(t, err, ErrTokenExchange)

		// the login request is single use
		_, err = a.Callback(ctx, "good-code", q.Get("state"))
		require.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("no key outside sandbox", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims()).SignedString([]byte("k"))
		require.NoError(t, err)
		ts.idToken = token

		a, _ := newTestAuth(t, ts, false, "")
		q := loginState(t, urlOf(a.Login(ctx)))
		_, err = a.Callback(ctx, "good-code", q.Get("state"))
		require.ErrorIs(t, err, ErrVerificationKeyRequired)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := testClaims()
		claims.ExpiresAt = time.Now().Add(-time.Hour).Unix()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
		require.NoError(t, err)
		ts.idToken = token

		a, _ := newTestAuth(t, ts, true, "")
		q := loginState(t, urlOf(a.Login(ctx)))
		_, err = a.Callback(ctx, "good-code", q.Get("state"))
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

// urlOf drops the error of Login, failures surface in the following assertions
func urlOf(loginURL string, _ error) string {
	return loginURL
}
