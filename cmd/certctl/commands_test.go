package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certificate-guard/internal/domain"
	"certificate-guard/internal/verification"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	envFile = ""
	root := newRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func useTempDatabase(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", filepath.Join(t.TempDir(), "certs.db"))
}

func TestHashCommand(t *testing.T) {
	out, err := runCommand(t, "hash", "cert-1", "user-42")
	require.NoError(t, err)
	assert.Equal(t, verification.ComputeHash("cert-1", "user-42")+"\n", out)

	_, err = runCommand(t, "hash", "cert-1")
	assert.Error(t, err)
}

func TestIssueVerifyAndBlocks(t *testing.T) {
	useTempDatabase(t)

	out, err := runCommand(t, "issue",
		"--token", "cert-1",
		"--holder-id", "user-42",
		"--holder-name", "Maria Souza",
		"--course", "Confeitaria Básica",
		"--issued-at", "2024-02-01",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "token: cert-1")
	assert.Contains(t, out, verification.ComputeHash("cert-1", "user-42"))

	out, err = runCommand(t, "verify", "cert-1", "user-42", verification.ComputeHash("cert-1", "user-42"))
	require.NoError(t, err)
	assert.Equal(t, "valid", strings.TrimSpace(out))

	out, err = runCommand(t, "verify", "cert-1", "user-42", "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "invalid", strings.TrimSpace(out))

	_, err = runCommand(t, "verify", "abc123", "user-42", "deadbeef")
	assert.Error(t, err)

	out, err = runCommand(t, "blocks", "cert-1")
	require.NoError(t, err)
	assert.Contains(t, out, "no blocked IPs")

	_, err = runCommand(t, "unblock", "cert-1", "9.9.9.9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not blocked")

	out, err = runCommand(t, "invalidate", "cert-1")
	require.NoError(t, err)
	assert.Contains(t, out, "invalidated cert-1")

	_, err = runCommand(t, "verify", "cert-1", "user-42", verification.ComputeHash("cert-1", "user-42"))
	assert.ErrorIs(t, err, domain.ErrCertificateNotFound)
}

func TestIssueRequiresFlags(t *testing.T) {
	useTempDatabase(t)

	_, err := runCommand(t, "issue", "--holder-id", "user-42")
	assert.Error(t, err)

	_, err = runCommand(t, "issue", "--holder-id", "u", "--holder-name", "n", "--course", "c", "--issued-at", "yesterday")
	assert.Error(t, err)
}
