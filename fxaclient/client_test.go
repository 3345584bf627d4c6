package fxaclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fxaccount/crypto"
	"github.com/jmcleod/fxaccount/fxaclient/fxatest"
	"github.com/jmcleod/fxaccount/internal/util"
	"github.com/jmcleod/fxaccount/key"
)

const (
	testEmail    = "andré@example.org"
	testPassword = "pässwörd"
)

func stretch(t *testing.T, email, password string) key.Key {
	t.Helper()
	qs, err := crypto.QuickStretch(email, []byte(password))
	require.NoError(t, err)
	return qs
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := New(serverURL)
	require.NoError(t, err)
	return c
}

// sealKeysBundle is the server side of openKeysBundle.
func sealKeysBundle(t *testing.T, keyRequestKey, kA, wrapKB []byte) []byte {
	t.Helper()
	hmacKey, xorKey, err := bundleKeys(keyRequestKey)
	require.NoError(t, err)
	ciphertext, err := util.Xor(append(append([]byte{}, kA...), wrapKB...), xorKey)
	require.NoError(t, err)
	m := hmac.New(sha256.New, hmacKey)
	m.Write(ciphertext)
	return m.Sum(ciphertext)
}

func parseHawkHeader(t *testing.T, header string) map[string]string {
	t.Helper()
	rest, ok := strings.CutPrefix(header, "Hawk ")
	require.True(t, ok, "not a Hawk header: %q", header)
	attrs := make(map[string]string)
	for _, part := range strings.Split(rest, ", ") {
		name, value, ok := strings.Cut(part, "=")
		require.True(t, ok, "bad attribute %q", part)
		unquoted, err := strconv.Unquote(value)
		require.NoError(t, err)
		attrs[name] = unquoted
	}
	return attrs
}

func TestNew(t *testing.T) {
	t.Run("RejectsUnsupportedScheme", func(t *testing.T) {
		_, err := New("ftp://example.com")
		assert.Error(t, err)
	})
	t.Run("TrimsTrailingSlash", func(t *testing.T) {
		c, err := New("https://api.accounts.firefox.com/")
		require.NoError(t, err)
		assert.Equal(t, "https://api.accounts.firefox.com", c.serverURL.String())
	})
}

func TestLoginAndGetKeys(t *testing.T) {
	srv := fxatest.NewServer()
	defer srv.Close()
	account := srv.AddAccount(testEmail, testPassword, true)
	c := newTestClient(t, srv.URL)

	resp, err := c.LoginAndGetKeys(context.Background(), []byte(testEmail), stretch(t, testEmail, testPassword))
	require.NoError(t, err)
	assert.Equal(t, account.UID, resp.UID)
	assert.True(t, resp.Verified)
	assert.False(t, resp.SessionToken.IsZero())
	assert.True(t, resp.KA.Equal(account.KA))
	assert.True(t, resp.WrapKB.Equal(account.WrapKB))
	assert.Equal(t, 1, srv.Requests("/v1/account/keys"))
}

func TestLoginAndGetKeysUnverified(t *testing.T) {
	srv := fxatest.NewServer()
	defer srv.Close()
	srv.AddAccount(testEmail, testPassword, false)
	c := newTestClient(t, srv.URL)

	resp, err := c.LoginAndGetKeys(context.Background(), []byte(testEmail), stretch(t, testEmail, testPassword))
	require.NoError(t, err)
	assert.False(t, resp.Verified)
	assert.True(t, resp.KA.IsZero())
	assert.True(t, resp.WrapKB.IsZero())
	assert.Equal(t, 0, srv.Requests("/v1/account/keys"))
}

func TestLoginErrors(t *testing.T) {
	srv := fxatest.NewServer()
	defer srv.Close()
	srv.AddAccount(testEmail, testPassword, true)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	t.Run("IncorrectPassword", func(t *testing.T) {
		_, err := c.LoginAndGetKeys(ctx, []byte(testEmail), stretch(t, testEmail, "wrong"))
		remote, ok := AsRemoteError(err)
		require.True(t, ok, "expected RemoteError, got %v", err)
		assert.Equal(t, ErrnoIncorrectPassword, remote.Errno)
		assert.Equal(t, http.StatusBadRequest, remote.HTTPStatusCode)
		assert.True(t, remote.IsInvalidAuth())
		assert.False(t, remote.Malformed)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		_, err := c.LoginAndGetKeys(ctx, []byte("nobody@example.org"), stretch(t, "nobody@example.org", "pw"))
		remote, ok := AsRemoteError(err)
		require.True(t, ok)
		assert.Equal(t, ErrnoAccountDoesNotExist, remote.Errno)
		assert.True(t, remote.IsInvalidAuth())
	})

	t.Run("EndpointGone", func(t *testing.T) {
		srv.FailNext("/v1/account/login", fxatest.Failure{Status: http.StatusGone, Errno: ErrnoEndpointNotSupported, Message: "gone"})
		_, err := c.LoginAndGetKeys(ctx, []byte(testEmail), stretch(t, testEmail, testPassword))
		remote, ok := AsRemoteError(err)
		require.True(t, ok)
		assert.True(t, remote.IsUpgradeRequired())
		assert.False(t, remote.IsInvalidAuth())
	})

	t.Run("NonJSONErrorBody", func(t *testing.T) {
		srv.FailNext("/v1/account/login", fxatest.Failure{Status: http.StatusBadGateway, Body: "<html>bad gateway</html>"})
		_, err := c.LoginAndGetKeys(ctx, []byte(testEmail), stretch(t, testEmail, testPassword))
		remote, ok := AsRemoteError(err)
		require.True(t, ok)
		assert.False(t, remote.Malformed)
		assert.Equal(t, http.StatusBadGateway, remote.HTTPStatusCode)
		assert.Equal(t, http.StatusBadGateway, remote.Code)
	})

	t.Run("KeyFetchFails", func(t *testing.T) {
		srv.FailNext("/v1/account/keys", fxatest.Failure{Status: http.StatusUnauthorized, Errno: ErrnoInvalidToken, Message: "invalid"})
		_, err := c.LoginAndGetKeys(ctx, []byte(testEmail), stretch(t, testEmail, testPassword))
		remote, ok := AsRemoteError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusUnauthorized, remote.HTTPStatusCode)
		assert.True(t, remote.IsInvalidAuth())
	})
}

func TestMalformedResponses(t *testing.T) {
	ctx := context.Background()
	qs := stretch(t, testEmail, testPassword)

	cases := []struct {
		name      string
		loginBody string
		keysBody  string
	}{
		{name: "NotJSON", loginBody: "not json"},
		{name: "MissingVerified", loginBody: `{"uid":"abc","sessionToken":"` + strings.Repeat("00", 32) + `"}`},
		{name: "BadSessionToken", loginBody: `{"uid":"abc","sessionToken":"zz","verified":false}`},
		{
			name:      "BadBundle",
			loginBody: `{"uid":"abc","sessionToken":"` + strings.Repeat("00", 32) + `","keyFetchToken":"` + strings.Repeat("11", 32) + `","verified":true}`,
			keysBody:  `{"bundle":"` + strings.Repeat("22", 96) + `"}`,
		},
		{
			name:      "EmptyBundle",
			loginBody: `{"uid":"abc","sessionToken":"` + strings.Repeat("00", 32) + `","keyFetchToken":"` + strings.Repeat("11", 32) + `","verified":true}`,
			keysBody:  `{}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/v1/account/login", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.loginBody))
			})
			r.Get("/v1/account/keys", func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.keysBody))
			})
			srv := httptest.NewServer(r)
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).LoginAndGetKeys(ctx, []byte(testEmail), qs)
			remote, ok := AsRemoteError(err)
			require.True(t, ok, "expected RemoteError, got %v", err)
			assert.True(t, remote.Malformed)
			assert.Equal(t, 0, remote.HTTPStatusCode)
			assert.Contains(t, remote.Error(), malformedMessage)
			assert.False(t, remote.IsInvalidAuth())
			assert.False(t, remote.IsUpgradeRequired())
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	serverURL := srv.URL
	srv.Close()

	_, err := newTestClient(t, serverURL).LoginAndGetKeys(context.Background(), []byte(testEmail), stretch(t, testEmail, testPassword))
	require.Error(t, err)
	_, ok := AsRemoteError(err)
	assert.False(t, ok, "transport failures are not remote errors")
}

func TestSign(t *testing.T) {
	srv := fxatest.NewServer()
	defer srv.Close()
	srv.AddAccount(testEmail, testPassword, true)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	resp, err := c.LoginAndGetKeys(ctx, []byte(testEmail), stretch(t, testEmail, testPassword))
	require.NoError(t, err)
	kp, err := key.GenerateKeyPair()
	require.NoError(t, err)
	publicKey, err := kp.PublicKeyJSON()
	require.NoError(t, err)

	cert, err := c.Sign(ctx, resp.SessionToken, publicKey, time.Hour)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(cert, claims, func(*jwt.Token) (any, error) {
		return srv.IssuerKey(), nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	require.NoError(t, err)
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp.Time, 5*time.Second)

	t.Run("RevokedSession", func(t *testing.T) {
		srv.RevokeSessions(testEmail)
		_, err := c.Sign(ctx, resp.SessionToken, publicKey, time.Hour)
		remote, ok := AsRemoteError(err)
		require.True(t, ok)
		assert.Equal(t, ErrnoInvalidToken, remote.Errno)
		assert.True(t, remote.IsInvalidAuth())
	})
}

func TestSignUnverified(t *testing.T) {
	srv := fxatest.NewServer()
	defer srv.Close()
	srv.AddAccount(testEmail, testPassword, false)
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	resp, err := c.LoginAndGetKeys(ctx, []byte(testEmail), stretch(t, testEmail, testPassword))
	require.NoError(t, err)

	_, err = c.Sign(ctx, resp.SessionToken, []byte(`{"algorithm":"ES"}`), time.Hour)
	remote, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.True(t, remote.IsUnverified())
	assert.False(t, remote.IsInvalidAuth())
}

func TestSignMissingCert(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/v1/certificate/sign", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	token, err := key.New(key.SessionToken, bytes.Repeat([]byte{1}, key.Size))
	require.NoError(t, err)
	_, err = newTestClient(t, srv.URL).Sign(context.Background(), token, []byte(`{}`), time.Minute)
	remote, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.True(t, remote.Malformed)
}

func TestHawkAuthorization(t *testing.T) {
	token, err := key.New(key.SessionToken, bytes.Repeat([]byte{7}, key.Size))
	require.NoError(t, err)
	creds, err := sessionCredentials(token)
	require.NoError(t, err)
	now := time.Unix(1700000000, 0)

	var header, body, requestURI, host string
	r := chi.NewRouter()
	r.Post("/v1/certificate/sign", func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Authorization")
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		body = buf.String()
		requestURI = r.RequestURI
		host = r.Host
		json.NewEncoder(w).Encode(map[string]string{"cert": "a.b.c"})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c, err := New(srv.URL, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	cert, err := c.Sign(context.Background(), token, []byte(`{"algorithm":"ES"}`), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", cert)

	attrs := parseHawkHeader(t, header)
	assert.Equal(t, creds.id, attrs["id"])
	assert.Equal(t, "1700000000", attrs["ts"])
	assert.Len(t, attrs["nonce"], 2*nonceBytes)
	assert.Equal(t, hawkPayloadHash(jsonContentType, []byte(body)), attrs["hash"])

	u, err := url.Parse("http://" + host + requestURI)
	require.NoError(t, err)
	want := hawkMAC(creds, now.Unix(), attrs["nonce"], http.MethodPost, u, attrs["hash"])
	assert.Equal(t, want, attrs["mac"])
}

func TestKeysBundle(t *testing.T) {
	keyRequestKey := bytes.Repeat([]byte{3}, key.Size)
	kA := bytes.Repeat([]byte{0xaa}, key.Size)
	wrapKB := bytes.Repeat([]byte{0xbb}, key.Size)
	bundle := sealKeysBundle(t, keyRequestKey, kA, wrapKB)

	gotKA, gotWrapKB, err := openKeysBundle(keyRequestKey, bundle)
	require.NoError(t, err)
	assert.Equal(t, kA, gotKA.Bytes())
	assert.Equal(t, wrapKB, gotWrapKB.Bytes())
	assert.Equal(t, key.KA, gotKA.Type())
	assert.Equal(t, key.WrapKB, gotWrapKB.Type())

	t.Run("TamperedMAC", func(t *testing.T) {
		tampered := append([]byte{}, bundle...)
		tampered[len(tampered)-1] ^= 1
		_, _, err := openKeysBundle(keyRequestKey, tampered)
		assert.Error(t, err)
	})

	t.Run("WrongLength", func(t *testing.T) {
		_, _, err := openKeysBundle(keyRequestKey, bundle[:64])
		assert.Error(t, err)
	})
}
