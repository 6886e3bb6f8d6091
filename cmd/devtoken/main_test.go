package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/brightminds/internal/auth"
)

func TestRun_HashCode(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-hash-code", "our-school", "-cost", "4"}, &out))

	hash := strings.TrimSpace(out.String())
	ec, err := auth.NewEnrollmentCode(hash)
	require.NoError(t, err)
	assert.True(t, ec.VerifyTeacherCode("our-school"))
}

func TestRun_Token(t *testing.T) {
	t.Setenv("JWT_SECRET", "devtoken-test-secret-0123456789")
	t.Setenv("JWT_ISSUER", "brightminds")

	var out bytes.Buffer
	require.NoError(t, run([]string{"-user", "teacher-1", "-ttl", "10m"}, &out))

	tokens, err := auth.NewTokenService("devtoken-test-secret-0123456789", "brightminds")
	require.NoError(t, err)
	sub, err := tokens.Validate(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", sub)
}

func TestRun_MissingUser(t *testing.T) {
	err := run(nil, &bytes.Buffer{})
	assert.ErrorContains(t, err, "-user is required")
}
