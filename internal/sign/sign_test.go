package sign_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordersync/internal/sign"
)

func TestBearer(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://api.example.com/orders", nil)
	require.NoError(t, err)

	sign.Bearer(req, "tok-123")
	assert.Equal(t, "Bearer tok-123", req.Header.Get("Authorization"))
}

func TestV4SignerKnownVector(t *testing.T) {
	signer := sign.V4Signer{
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
		Region:    "us-east-1",
		Service:   "execute-api",
	}
	req, err := http.NewRequest(http.MethodGet,
		"https://sellingpartnerapi-na.amazon.com/orders/v0/orders?CreatedAfter=2023-01-01T00:00:00Z&MarketplaceIds=ATVPDKIKX0DER", nil)
	require.NoError(t, err)

	now := time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC)
	signer.Sign(req, "Atza|IQEBLjAsAexampletoken", now)

	assert.Equal(t, "20230115T120000Z", req.Header.Get("X-Amz-Date"))
	assert.Equal(t, "Atza|IQEBLjAsAexampletoken", req.Header.Get("X-Amz-Access-Token"))
	assert.Equal(t, sign.UserAgent, req.Header.Get("User-Agent"))
	assert.Equal(t,
		"AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20230115/us-east-1/execute-api/aws4_request, "+
			"SignedHeaders=host;user-agent;x-amz-access-token;x-amz-date, "+
			"Signature=45a8de3843c4502e5670ddbd9fc71f38c9decbbbcef3aba22c73ff928fbf0c97",
		req.Header.Get("Authorization"))
}

func TestV4SignerDeterministic(t *testing.T) {
	signer := sign.V4Signer{
		AccessKey: "key",
		SecretKey: "secret",
		Region:    "eu-west-1",
		Service:   "execute-api",
	}
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

	build := func() *http.Request {
		req, err := http.NewRequest(http.MethodGet,
			"https://sellingpartnerapi-eu.amazon.com/orders/v0/orders?MarketplaceIds=A1F83G8C2ARO7P&CreatedAfter=2024-05-01T00:00:00Z", nil)
		require.NoError(t, err)
		return req
	}

	a, b := build(), build()
	signer.Sign(a, "token", now)
	signer.Sign(b, "token", now)
	assert.Equal(t, a.Header.Get("Authorization"), b.Header.Get("Authorization"))
}

func TestV4SignerQueryOrderIrrelevant(t *testing.T) {
	signer := sign.V4Signer{
		AccessKey: "key",
		SecretKey: "secret",
		Region:    "us-east-1",
		Service:   "execute-api",
	}
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

	a, err := http.NewRequest(http.MethodGet,
		"https://sellingpartnerapi-na.amazon.com/orders/v0/orders?CreatedAfter=2024-01-01T00:00:00Z&MarketplaceIds=ATVPDKIKX0DER", nil)
	require.NoError(t, err)
	b, err := http.NewRequest(http.MethodGet,
		"https://sellingpartnerapi-na.amazon.com/orders/v0/orders?MarketplaceIds=ATVPDKIKX0DER&CreatedAfter=2024-01-01T00:00:00Z", nil)
	require.NoError(t, err)

	signer.Sign(a, "token", now)
	signer.Sign(b, "token", now)
	assert.Equal(t, a.Header.Get("Authorization"), b.Header.Get("Authorization"))
}

func TestV4SignerEmptyPath(t *testing.T) {
	signer := sign.V4Signer{AccessKey: "k", SecretKey: "s", Region: "us-east-1", Service: "execute-api"}
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	a, err := http.NewRequest(http.MethodGet, "https://sellingpartnerapi-na.amazon.com", nil)
	require.NoError(t, err)
	b, err := http.NewRequest(http.MethodGet, "https://sellingpartnerapi-na.amazon.com/", nil)
	require.NoError(t, err)

	signer.Sign(a, "token", now)
	signer.Sign(b, "token", now)
	assert.Equal(t, a.Header.Get("Authorization"), b.Header.Get("Authorization"))
}
