package push

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/fxaccount/storage/file"
	"github.com/jmcleod/fxaccount/storage/memory"
)

var quietLogger = slog.New(slog.DiscardHandler)

func registeredRegistration(endpoint string, now time.Time) *Registration {
	r := NewRegistration(endpoint, false)
	uaid := NewFetched("uaid-1", now)
	r.UAID = &uaid
	r.Secret = "secret-1"
	return r
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "push.json")
	s, err := OpenStore(file.New(path))
	require.NoError(t, err)
	assert.Nil(t, s.Registration("default"))

	now := time.Now()
	r := registeredRegistration("https://updates.push.services.mozilla.com", now)
	r.PutSubscription(&Subscription{
		ChannelID:       "chid-1",
		ProfileName:     "default",
		WebpushEndpoint: "https://updates.push.services.mozilla.com/wpush/v1/abc",
		Service:         "fxa",
		ServiceData:     map[string]any{"version": 5},
	})
	s.PutRegistration("default", r)
	s.PutRegistration("unregistered", NewRegistration("https://h2", true))
	require.NoError(t, s.Checkpoint())

	reopened, err := OpenStore(file.New(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "unregistered"}, reopened.Profiles())

	got := reopened.Registration("default")
	require.NotNil(t, got)
	require.True(t, got.Registered())
	assert.Equal(t, "uaid-1", got.UAID.Value)
	assert.Equal(t, now.UnixMilli(), got.UAID.Timestamp.UnixMilli())
	assert.Equal(t, "secret-1", got.Secret)
	sub := got.Subscription("chid-1")
	require.NotNil(t, sub)
	assert.Equal(t, "fxa", sub.Service)
	assert.EqualValues(t, 5, sub.ServiceData["version"])

	unregistered := reopened.Registration("unregistered")
	assert.False(t, unregistered.Registered())
	assert.True(t, unregistered.Debug)
	assert.NotNil(t, unregistered.Subscriptions)

	var raw map[string]map[string]any
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Nil(t, raw["unregistered"]["uaid"], "unregistered uaid is stored as null")
}

func TestStoreReturnsCopies(t *testing.T) {
	s, err := OpenStore(memory.New())
	require.NoError(t, err)
	s.PutRegistration("default", registeredRegistration("https://h1", time.Now()))

	r := s.Registration("default")
	r.UAID.Value = "changed"
	r.PutSubscription(&Subscription{ChannelID: "x"})

	again := s.Registration("default")
	assert.Equal(t, "uaid-1", again.UAID.Value)
	assert.Nil(t, again.Subscription("x"))
}

func TestStoreRegistrationForSubscription(t *testing.T) {
	s, err := OpenStore(memory.New())
	require.NoError(t, err)
	a := registeredRegistration("https://h1", time.Now())
	a.PutSubscription(&Subscription{ChannelID: "chid-a", ProfileName: "a"})
	b := registeredRegistration("https://h2", time.Now())
	b.PutSubscription(&Subscription{ChannelID: "chid-b", ProfileName: "b"})
	s.PutRegistration("a", a)
	s.PutRegistration("b", b)

	profile, r := s.RegistrationForSubscription("chid-b")
	assert.Equal(t, "b", profile)
	require.NotNil(t, r)
	assert.Equal(t, "https://h2", r.AutopushEndpoint)

	profile, r = s.RegistrationForSubscription("missing")
	assert.Empty(t, profile)
	assert.Nil(t, r)
}

func TestStoreCorruptedRecovery(t *testing.T) {
	for name, doc := range map[string]string{
		"InvalidJSON":   `{"default": {"autopushEndpoint": `,
		"WrongShape":    `["default"]`,
		"BadUAID":       `{"default":{"autopushEndpoint":"https://h1","uaid":{"value":"","timestamp":1}}}`,
		"BinaryGarbage": "\x00\x01\x02",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "push.json")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

			s, err := OpenStore(file.New(path), WithStoreLogger(quietLogger))
			require.NoError(t, err)
			require.NotNil(t, s)
			assert.Empty(t, s.Profiles())
			assert.Nil(t, s.Registration("default"))
		})
	}
}

func TestStoreRemoveRegistration(t *testing.T) {
	s, err := OpenStore(memory.New())
	require.NoError(t, err)
	s.PutRegistration("default", NewRegistration("https://h1", false))
	assert.True(t, s.RemoveRegistration("default"))
	assert.False(t, s.RemoveRegistration("default"))
}

func TestFetchedJSON(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	data, err := json.Marshal(NewFetched("tok", at))
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"tok","timestamp":1700000000123}`, string(data))

	var f Fetched
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, "tok", f.Value)
	assert.True(t, f.Timestamp.Equal(at))

	assert.ErrorIs(t, json.Unmarshal([]byte(`{"timestamp":1}`), &f), ErrMissingField)

	assert.True(t, f.OlderThan(time.Hour, at.Add(2*time.Hour)))
	assert.False(t, f.OlderThan(time.Hour, at.Add(time.Minute)))
}
