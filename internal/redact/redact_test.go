package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScan_DetectsAWSKey(t *testing.T) {
	cat, err := New(nil, nil)
	require.NoError(t, err)

	content := []byte("token=AKIA0123456789ABCDEF trailing")
	matches := cat.Scan(content)
	require.Len(t, matches, 1)
	require.Equal(t, "aws_access_key_id", matches[0].PatternID)
}

func TestRedact_ClosureOverScan(t *testing.T) {
	cat, err := New(nil, nil)
	require.NoError(t, err)

	content := []byte("key: AKIA0123456789ABCDEF\nbearer abcdefghijklmnopqrstuvwxyz0123456789\n")
	redacted := cat.Redact(content)

	require.Empty(t, cat.Scan(redacted))
	require.NotContains(t, string(redacted), "AKIA0123456789ABCDEF")
}

func TestIgnorePatterns_SuppressesBuiltin(t *testing.T) {
	cat, err := New(nil, []string{"aws_access_key_id"})
	require.NoError(t, err)

	content := []byte("AKIA0123456789ABCDEF")
	require.Empty(t, cat.Scan(content))
	require.Equal(t, content, cat.Redact(content))
}

func TestExtraPatterns_Detected(t *testing.T) {
	cat, err := New(map[string]string{"acme_token": `ACME-[0-9]{6}`}, nil)
	require.NoError(t, err)

	matches := cat.Scan([]byte("id ACME-123456 end"))
	require.Len(t, matches, 1)
	require.Equal(t, "acme_token", matches[0].PatternID)
}

func TestScan_NeverReturnsRawText(t *testing.T) {
	// Match carries only pattern id and byte range; assert the struct has
	// no field capable of holding matched text.
	m := Match{PatternID: "x", Start: 1, End: 2}
	require.Equal(t, "x", m.PatternID)
}
