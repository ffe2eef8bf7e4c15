package encoding

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/blueteam-leaderboard/internal/errors"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/privacy"
	"github.com/ZanzyTHEbar/blueteam-leaderboard/internal/types"
)

var testEpoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testReport(t *testing.T) *analysis.Report {
	t.Helper()
	rows := []types.Row{
		{ContributorID: "jason@example.com", Category: "Hate", PolicyType: "Violence", Outcome: "Full"},
		{ContributorID: "jason@example.com", Category: "Fraud", PolicyType: "Violence", Outcome: "Partial"},
		{ContributorID: "maria@example.com", Category: "Hate", PolicyType: "Self-harm", Outcome: "N/a"},
	}
	report, err := analysis.Process(rows)
	require.NoError(t, err)
	return report
}

// rawToken compresses arbitrary bytes into token form
func rawToken(t *testing.T, raw string) string {
	t.Helper()
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = fw.Write([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, fw.Close())
	return FragmentMarker + base64.RawURLEncoding.EncodeToString(buf.Bytes())
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(DefaultTTL, nil, WithClock(fixedClock(testEpoch)))
	report := testReport(t)

	token, err := codec.Encode(report)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, FragmentMarker))
	assert.NotContains(t, token, "jason")
	assert.NotContains(t, token[1:], "=")

	decoded, err := codec.Decode(token)
	require.NoError(t, err)

	if diff := cmp.Diff(codec.Project(report), decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCodecProjection(t *testing.T) {
	codec := NewCodec(time.Hour, nil, WithClock(fixedClock(testEpoch)))
	p := codec.Project(testReport(t))

	assert.Equal(t, SchemaVersion, p.Version)
	assert.Equal(t, testEpoch.UnixMilli(), p.CreatedAt)
	assert.Equal(t, testEpoch.Add(time.Hour).UnixMilli(), p.ExpiresAt)

	require.Len(t, p.Contributors, 2)
	top := p.Contributors[0]
	assert.Equal(t, privacy.AnonymizedID("jason@example.com"), top.AnonymizedID)
	assert.Equal(t, 1, top.Scores.Rank)
	assert.Equal(t, 2, top.Stats.Submissions)
	assert.Equal(t, 2, top.Stats.Categories)
	assert.InDelta(t, 0.75, top.Stats.DeflectionRate, 1e-12)

	require.Len(t, p.Categories, 2)
	assert.Equal(t, "Hate", p.Categories[0].Name)
	assert.Equal(t, 2, p.Categories[0].Count)
	assert.Equal(t, 3, p.Global.TotalSubmissions)
}

func TestCodecKeyedAnonymizer(t *testing.T) {
	anonymizer := privacy.NewAnonymizer(privacy.WithKey("team-secret"))
	codec := NewCodec(DefaultTTL, anonymizer, WithClock(fixedClock(testEpoch)))

	p := codec.Project(testReport(t))
	assert.Equal(t, anonymizer.ID("jason@example.com"), p.Contributors[0].AnonymizedID)
	assert.NotEqual(t, privacy.AnonymizedID("jason@example.com"), p.Contributors[0].AnonymizedID)
}

func TestCodecAcceptsURLAndBareToken(t *testing.T) {
	codec := NewCodec(DefaultTTL, nil, WithClock(fixedClock(testEpoch)))
	token, err := codec.Encode(testReport(t))
	require.NoError(t, err)

	for _, input := range []string{
		token,
		strings.TrimPrefix(token, FragmentMarker),
		"http://127.0.0.1:8080/share" + token,
		"  " + token + "\n",
	} {
		p, err := codec.Decode(input)
		require.NoError(t, err)
		assert.Len(t, p.Contributors, 2)
	}
}

func TestCodecExpiry(t *testing.T) {
	encoder := NewCodec(DefaultTTL, nil, WithClock(fixedClock(testEpoch)))
	token, err := encoder.Encode(testReport(t))
	require.NoError(t, err)

	atExpiry := NewCodec(DefaultTTL, nil, WithClock(fixedClock(testEpoch.Add(DefaultTTL))))
	_, err = atExpiry.Decode(token)
	assert.NoError(t, err, "expiry instant itself is still valid")

	later := NewCodec(DefaultTTL, nil, WithClock(fixedClock(testEpoch.Add(25*time.Hour))))
	p, err := later.Decode(token)
	assert.Nil(t, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExpired))
}

func TestCodecDecodeErrors(t *testing.T) {
	codec := NewCodec(DefaultTTL, nil, WithClock(fixedClock(testEpoch)))

	tests := []struct {
		name     string
		token    string
		expected error
	}{
		{"empty string", "", ErrEmptyToken},
		{"marker only", "#", ErrEmptyToken},
		{"invalid base64", "#!!!not-base64!!!", ErrCorruptToken},
		{"not deflate", "#" + base64.RawURLEncoding.EncodeToString([]byte{0xff, 0xff, 0xff}), ErrCorruptToken},
		{"not json", rawToken(t, "not json at all"), ErrMalformedPayload},
		{"json array", rawToken(t, "[1,2,3]"), ErrMalformedPayload},
		{"missing version", rawToken(t, `{"createdAt":1}`), ErrMalformedPayload},
		{"unknown field", rawToken(t, `{"version":"1.0","email":"jason@example.com"}`), ErrMalformedPayload},
		{"trailing data", rawToken(t, `{"version":"1.0"}{"version":"1.0"}`), ErrMalformedPayload},
		{"future version", rawToken(t, `{"version":"2.0","newField":true}`), ErrUnsupportedVersion},
		{"old version", rawToken(t, `{"version":"0.9"}`), ErrUnsupportedVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := codec.Decode(tt.token)
			assert.Nil(t, p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expected), "got %v", err)

			var tokenErr *TokenError
			require.True(t, errors.As(err, &tokenErr))
			assert.Equal(t, tt.expected.(*TokenError).Reason, tokenErr.Reason)
		})
	}
}

func TestCodecNoExpiryField(t *testing.T) {
	codec := NewCodec(DefaultTTL, nil, WithClock(fixedClock(testEpoch)))

	p, err := codec.Decode(rawToken(t, `{"version":"1.0","createdAt":0,"contributors":[],"categories":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "No expiry", TimeRemaining(p, testEpoch))
}

func TestTokenErrorMapsToHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrExpired, 410},
		{ErrUnsupportedVersion, 422},
		{ErrCorruptToken, 400},
		{ErrMalformedPayload, 400},
		{ErrEmptyToken, 400},
	}

	for _, tt := range tests {
		appErr := apperrors.ToAppError(tt.err)
		assert.Equal(t, apperrors.CategoryToken, appErr.Category)
		assert.Equal(t, tt.status, appErr.HTTPStatus)
	}
}

func TestTimeRemaining(t *testing.T) {
	p := &SharePayload{ExpiresAt: testEpoch.UnixMilli()}

	tests := []struct {
		name     string
		now      time.Time
		expected string
	}{
		{"hours and minutes", testEpoch.Add(-(5*time.Hour + 30*time.Minute + 20*time.Second)), "5h 30m remaining"},
		{"minutes only", testEpoch.Add(-45 * time.Minute), "45m remaining"},
		{"under a minute", testEpoch.Add(-10 * time.Second), "0m remaining"},
		{"at expiry", testEpoch, "0m remaining"},
		{"past expiry", testEpoch.Add(time.Millisecond), "Expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TimeRemaining(p, tt.now))
		})
	}
}

func TestCodecDefaults(t *testing.T) {
	codec := NewCodec(0, nil)
	assert.Equal(t, DefaultTTL, codec.TTL())
}
