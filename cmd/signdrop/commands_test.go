package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/auth"
	"github.com/dharsanguruparan/SignDrop/internal/memstore"
	"github.com/dharsanguruparan/SignDrop/internal/model"
	"github.com/dharsanguruparan/SignDrop/internal/users"
)

const (
	testSigningSecret = "cli-test-signing-secret"
	testJWTSecret     = "cli-test-jwt-secret"
	helloFingerprint  = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
)

func setEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SIGNDROP_SIGNING_SECRET", testSigningSecret)
	t.Setenv("SIGNDROP_JWT_SECRET", testJWTSecret)
	t.Setenv("SIGNDROP_STORAGE", "memory")
	t.Setenv("SIGNDROP_LOG_LEVEL", "error")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFingerprintCommand(t *testing.T) {
	path := writeFile(t, "hello")

	out, err := execute(t, "fingerprint", path)
	require.NoError(t, err)
	assert.Equal(t, helloFingerprint+"\n", out)

	_, err = execute(t, "fingerprint", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestFingerprintSignThenVerify(t *testing.T) {
	setEnv(t)
	path := writeFile(t, "hello")

	out, err := execute(t, "fingerprint", "--sign", path)
	require.NoError(t, err)
	fields := strings.Fields(out)
	require.Len(t, fields, 4)
	assert.Equal(t, helloFingerprint, fields[1])
	signature := fields[3]

	out, err = execute(t, "verify", path, signature)
	require.NoError(t, err)
	assert.Contains(t, out, "valid       true")

	out, err = execute(t, "verify", path, strings.ToUpper(signature))
	require.NoError(t, err, "claimed signatures are case-insensitive")
	assert.Contains(t, out, "valid       true")

	tampered := writeFile(t, "hellp")
	out, err = execute(t, "verify", tampered, signature)
	assert.ErrorIs(t, err, errInvalidSignature)
	assert.Contains(t, out, "valid       false")
}

func TestVerifyNeedsSecret(t *testing.T) {
	t.Setenv("SIGNDROP_SIGNING_SECRET", "")
	t.Setenv("SIGNDROP_JWT_SECRET", testJWTSecret)
	path := writeFile(t, "hello")

	_, err := execute(t, "verify", path, strings.Repeat("0", 64))
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	setEnv(t)

	out, err := execute(t, "token", "--id", "u-42", "--role", "manager")
	require.NoError(t, err)

	identity, err := auth.NewIssuer([]byte(testJWTSecret), time.Hour).Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, model.Identity{ID: "u-42", Role: model.RoleManager}, identity)

	_, err = execute(t, "token", "--id", "u-42", "--role", "root")
	assert.Error(t, err)

	_, err = execute(t, "token")
	assert.Error(t, err, "--id is required")
}

func TestUserAddNeedsDatabase(t *testing.T) {
	setEnv(t)
	t.Setenv("SIGNDROP_DATABASE_URL", "")

	_, err := execute(t, "user", "add", "--name", "Ada", "--email", "ada@example.com")
	assert.ErrorContains(t, err, "SIGNDROP_DATABASE_URL")
}

func TestAddUser(t *testing.T) {
	db, err := memstore.New()
	require.NoError(t, err)
	dir := users.NewService(db)
	issuer := auth.NewIssuer([]byte(testJWTSecret), time.Hour)

	cmd := newUserAddCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err = addUser(context.Background(), cmd, dir, users.CreateInput{Name: "Ada", Email: "ada@example.com", Role: model.RoleAdmin}, true, issuer)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "created admin user")
	identity, err := issuer.Parse(lines[1])
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, identity.Role)

	err = addUser(context.Background(), cmd, dir, users.CreateInput{Name: "Ada", Email: "ada@example.com", Role: model.RoleUser}, false, issuer)
	assert.Error(t, err, "email already registered")
}
