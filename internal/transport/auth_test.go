package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitabwire/journeybff/model"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"absent", "", ""},
		{"bearer", "Bearer abc.def", "abc.def"},
		{"lower case scheme", "bearer abc", "abc"},
		{"extra spaces", "  Bearer   abc  ", "abc"},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
		{"scheme only", "Bearer", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if got := BearerToken(r); got != tt.want {
				t.Errorf("BearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func captureRequestContext(t *testing.T, r *http.Request) *model.RequestContext {
	t.Helper()
	var got *model.RequestContext
	h := RequestID(BuildRequestContext(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = model.RequestContextFrom(r.Context())
	})))
	h.ServeHTTP(httptest.NewRecorder(), r)
	if got == nil {
		t.Fatal("no RequestContext in handler context")
	}
	return got
}

func TestBuildRequestContext_carriesCallerToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/journey/init", nil)
	r.Header.Set("Authorization", "Bearer "+signed)
	r.Header.Set("Accept-Language", "ro-RO")
	r.Header.Set(CorrelationHeader, "corr-9")

	rctx := captureRequestContext(t, r)
	if rctx.BearerToken != signed {
		t.Errorf("BearerToken = %q, want the presented token", rctx.BearerToken)
	}
	if rctx.Subject != "user-42" {
		t.Errorf("Subject = %q, want user-42", rctx.Subject)
	}
	if rctx.Locale != "ro-RO" {
		t.Errorf("Locale = %q", rctx.Locale)
	}
	if rctx.CorrelationID != "corr-9" {
		t.Errorf("CorrelationID = %q, want corr-9", rctx.CorrelationID)
	}
}

func TestBuildRequestContext_opaqueToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")

	rctx := captureRequestContext(t, r)
	if rctx.BearerToken != "not-a-jwt" {
		t.Errorf("BearerToken = %q", rctx.BearerToken)
	}
	if rctx.Subject != "" {
		t.Errorf("Subject = %q, want empty for opaque token", rctx.Subject)
	}
}

func TestBuildRequestContext_noToken(t *testing.T) {
	rctx := captureRequestContext(t, httptest.NewRequest(http.MethodPost, "/", nil))
	if rctx.HasBearerToken() {
		t.Error("HasBearerToken() = true, want false")
	}
	if rctx.CorrelationID == "" {
		t.Error("CorrelationID should be generated")
	}
}
