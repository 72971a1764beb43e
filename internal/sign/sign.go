package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// UserAgent identifies this client on every outbound request and is part of
// the signed header set.
const UserAgent = "ordersync/1.0"

const algorithm = "AWS4-HMAC-SHA256"

// Bearer attaches a bearer token authorization header.
func Bearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

// V4Signer signs requests with the SigV4 scheme the Selling Partner API
// expects: the IAM key pair signs the canonical request while the LWA access
// token rides along in x-amz-access-token.
type V4Signer struct {
	AccessKey string
	SecretKey string
	Region    string
	Service   string
}

// Sign computes the signature over the request's method, path, query and the
// fixed header set {host, user-agent, x-amz-access-token, x-amz-date} and
// attaches the resulting headers. Deterministic given (request, credentials,
// now); it touches nothing outside the request.
func (s V4Signer) Sign(req *http.Request, accessToken string, now time.Time) {
	amzDate := now.UTC().Format("20060102T150405Z")
	dateStamp := now.UTC().Format("20060102")

	headers := map[string]string{
		"host":               req.URL.Host,
		"user-agent":         UserAgent,
		"x-amz-access-token": accessToken,
		"x-amz-date":         amzDate,
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var canonicalHeaders strings.Builder
	for _, name := range names {
		canonicalHeaders.WriteString(name)
		canonicalHeaders.WriteByte(':')
		canonicalHeaders.WriteString(strings.TrimSpace(headers[name]))
		canonicalHeaders.WriteByte('\n')
	}
	signedHeaders := strings.Join(names, ";")

	path := req.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	canonicalRequest := strings.Join([]string{
		req.Method,
		path,
		canonicalQuery(req.URL.Query()),
		canonicalHeaders.String(),
		signedHeaders,
		hashHex(nil), // all signed calls are bodiless GETs
	}, "\n")

	scope := dateStamp + "/" + s.Region + "/" + s.Service + "/aws4_request"
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hashHex([]byte(canonicalRequest)),
	}, "\n")

	key := []byte("AWS4" + s.SecretKey)
	for _, part := range []string{dateStamp, s.Region, s.Service, "aws4_request"} {
		key = hmacSHA256(key, part)
	}
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("X-Amz-Access-Token", accessToken)
	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, s.AccessKey, scope, signedHeaders, signature))
}

// canonicalQuery percent-encodes keys and values and sorts them
// lexicographically, the ordering the server reproduces when verifying.
func canonicalQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			parts = append(parts, uriEncode(k)+"="+uriEncode(v))
		}
	}
	return strings.Join(parts, "&")
}

// uriEncode is RFC 3986 percent-encoding; url.QueryEscape would emit '+' for
// spaces, which the verifier rejects.
func uriEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}
