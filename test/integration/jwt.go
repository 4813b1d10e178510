package integration

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestClaims are the caller token claims a test controls.
type TestClaims struct {
	SubjectID string
	Email     string
	Extra     map[string]any
}

// ApplicantClaims are the claims of a signed-in loan applicant.
func ApplicantClaims() TestClaims {
	return TestClaims{SubjectID: "applicant-1", Email: "applicant@example.com"}
}

// applicantToken is the claim set of a customer identity provider token.
type applicantToken struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// tokenIssuer stands in for the customer identity provider. The BFF only
// forwards its tokens, so the key never leaves the test.
type tokenIssuer struct {
	key *ecdsa.PrivateKey
}

func newTokenIssuer(t *testing.T) *tokenIssuer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("identity provider key: %v", err)
	}
	return &tokenIssuer{key: key}
}

// GenerateToken signs an ES256 token for claims, valid for ten minutes.
// Extra claims are merged over the registered ones.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	now := time.Now()
	base := applicantToken{
		Email: claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://identity.test.journeybff.dev",
			Subject:   claims.SubjectID,
			Audience:  jwt.ClaimStrings{"journey-engine"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
	}

	var token *jwt.Token
	if len(claims.Extra) == 0 {
		token = jwt.NewWithClaims(jwt.SigningMethodES256, base)
	} else {
		merged := jwt.MapClaims{
			"iss":   base.Issuer,
			"sub":   base.Subject,
			"aud":   []string(base.Audience),
			"iat":   base.IssuedAt,
			"exp":   base.ExpiresAt,
			"email": base.Email,
		}
		for k, v := range claims.Extra {
			merged[k] = v
		}
		token = jwt.NewWithClaims(jwt.SigningMethodES256, merged)
	}

	signed, err := token.SignedString(ti.key)
	if err != nil {
		panic("sign applicant token: " + err.Error())
	}
	return signed
}
