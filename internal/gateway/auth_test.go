package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pitabwire/journeybff/internal/config"
	"github.com/pitabwire/journeybff/model"
)

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{"bare quoted string", `"abc.def.ghi"`, "abc.def.ghi", true},
		{"unquoted raw token", `abc.def.ghi`, "abc.def.ghi", true},
		{"access_token", `{"access_token":"t1","expires_in":300}`, "t1", true},
		{"accessToken", `{"accessToken":"t2"}`, "t2", true},
		{"token", `{"token":"t3"}`, "t3", true},
		{"id_token", `{"id_token":"t4"}`, "t4", true},
		{"nested data", `{"data":{"access_token":"t5"}}`, "t5", true},
		{"first known name wins", `{"token":"later","access_token":"first"}`, "first", true},
		{"empty body", ``, "", false},
		{"empty string", `""`, "", false},
		{"object without token", `{"message":"nope"}`, "", false},
		{"non-string token", `{"access_token":42}`, "", false},
		{"garbage with spaces", `not a token`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractToken([]byte(tt.body))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("expires_in wins", func(t *testing.T) {
		got := tokenExpiry([]byte(`{"access_token":"x","expires_in":120}`), "x", time.Minute, now)
		assert.Equal(t, now.Add(120*time.Second), got)
	})

	t.Run("jwt exp claim", func(t *testing.T) {
		exp := now.Add(45 * time.Minute)
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": exp.Unix(),
		}).SignedString([]byte("secret"))
		require.NoError(t, err)

		got := tokenExpiry([]byte(`"`+signed+`"`), signed, time.Minute, now)
		assert.Equal(t, exp.Unix(), got.Unix())
	})

	t.Run("fallback ttl", func(t *testing.T) {
		got := tokenExpiry([]byte(`"opaque"`), "opaque", 3*time.Minute, now)
		assert.Equal(t, now.Add(3*time.Minute), got)
	})

	t.Run("zero fallback uses five minutes", func(t *testing.T) {
		got := tokenExpiry(nil, "opaque", 0, now)
		assert.Equal(t, now.Add(5*time.Minute), got)
	})
}

func TestTokenProvider_reuseCachesUntilExpiry(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) (*oauth2.Token, error) {
		calls.Add(1)
		return &oauth2.Token{AccessToken: "cached", Expiry: time.Now().Add(time.Hour)}, nil
	}
	p := newTokenProvider(context.Background(), fetch, true)

	for i := 0; i < 3; i++ {
		tok, err := p.token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "cached", tok)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenProvider_withoutReuseFetchesEveryCall(t *testing.T) {
	var calls atomic.Int32
	fetch := func(context.Context) (*oauth2.Token, error) {
		calls.Add(1)
		return &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}, nil
	}
	p := newTokenProvider(context.Background(), fetch, false)

	for i := 0; i < 3; i++ {
		_, err := p.token(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestEngineTokenFetcher_passwordForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "alice", r.PostForm.Get("username"))
		assert.Equal(t, "s3cret", r.PostForm.Get("password"))
		assert.Equal(t, "app", r.PostForm.Get("client_id"))
		_, _ = w.Write([]byte(`"engine-token"`))
	}))
	defer srv.Close()

	f := &engineTokenFetcher{
		cfg: config.EngineAuthConfig{
			Mode:     config.AuthModePassword,
			TokenURL: srv.URL,
			Username: "alice",
			Password: "s3cret",
			ClientID: "app",
		},
		client: srv.Client(),
		now:    time.Now,
	}
	tok, err := f.fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "engine-token", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
}

func TestEngineTokenFetcher_clientCredentialsForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Empty(t, r.PostForm.Get("username"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "csecret", r.PostForm.Get("client_secret"))
		_, _ = w.Write([]byte(`{"access_token":"cc-token","expires_in":60}`))
	}))
	defer srv.Close()

	f := &engineTokenFetcher{
		cfg: config.EngineAuthConfig{
			Mode:         config.AuthModeClientCredentials,
			TokenURL:     srv.URL,
			ClientID:     "cid",
			ClientSecret: "csecret",
		},
		client: srv.Client(),
		now:    time.Now,
	}
	tok, err := f.fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cc-token", tok.AccessToken)
}

func TestEngineTokenFetcher_rejectedSurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_description":"bad credentials"}`))
	}))
	defer srv.Close()

	f := &engineTokenFetcher{
		cfg:    config.EngineAuthConfig{Mode: config.AuthModePassword, TokenURL: srv.URL},
		client: srv.Client(),
		now:    time.Now,
	}
	_, err := f.fetch(context.Background())

	var ue *model.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusUnauthorized, ue.Status)
	assert.Equal(t, "token", ue.Operation)
	assert.Equal(t, "bad credentials", ue.Message)
}

func TestEngineTokenFetcher_bodyWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	f := &engineTokenFetcher{
		cfg:    config.EngineAuthConfig{Mode: config.AuthModePassword, TokenURL: srv.URL},
		client: srv.Client(),
		now:    time.Now,
	}
	_, err := f.fetch(context.Background())

	var ue *model.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Message, "did not contain a token")
}
