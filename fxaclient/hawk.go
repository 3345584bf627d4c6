package fxaclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const hawkVersion = "hawk.1"

// hawkPayloadHash hashes a request body the way Hawk expects.
func hawkPayloadHash(contentType string, body []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s.payload\n%s\n", hawkVersion, contentType)
	h.Write(body)
	h.Write([]byte("\n"))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func hawkMAC(creds hawkCredentials, ts int64, nonce, method string, u *url.URL, payloadHash string) string {
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	normalized := strings.Join([]string{
		hawkVersion + ".header",
		strconv.FormatInt(ts, 10),
		nonce,
		strings.ToUpper(method),
		u.RequestURI(),
		strings.ToLower(u.Hostname()),
		port,
		payloadHash,
		"", // ext
	}, "\n") + "\n"

	m := hmac.New(sha256.New, creds.hmacKey)
	m.Write([]byte(normalized))
	return base64.StdEncoding.EncodeToString(m.Sum(nil))
}

// hawkHeader builds the Authorization header for a token-authenticated
// request.
func hawkHeader(creds hawkCredentials, now time.Time, nonce, method string, u *url.URL, payloadHash string) string {
	ts := now.Unix()
	mac := hawkMAC(creds, ts, nonce, method, u, payloadHash)
	parts := []string{
		fmt.Sprintf("id=%q", creds.id),
		fmt.Sprintf("ts=%q", strconv.FormatInt(ts, 10)),
		fmt.Sprintf("nonce=%q", nonce),
	}
	if payloadHash != "" {
		parts = append(parts, fmt.Sprintf("hash=%q", payloadHash))
	}
	parts = append(parts, fmt.Sprintf("mac=%q", mac))
	return "Hawk " + strings.Join(parts, ", ")
}
