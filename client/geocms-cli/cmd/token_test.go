package cmd

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueToken(t *testing.T) {
	signed, err := issueToken("s3cret", "alice", time.Hour, time.Now())
	require.NoError(t, err)

	parsed, err := jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "alice", claims["sub"])

	_, err = issueToken("", "alice", time.Hour, time.Now())
	assert.Error(t, err)
}

func TestIssueToken_Expired(t *testing.T) {
	signed, err := issueToken("s3cret", "alice", time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	assert.Error(t, err)
}
