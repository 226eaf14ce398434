package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/johnnyhall81/clientdining-v1-sub000/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.env")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func memoryEnv(t *testing.T) string {
	return writeEnv(t,
		"STORE_DRIVER=memory",
		"KAFKA_ENABLED=false",
		"HOLD_TIMER_ENABLED=false",
		"JWT_SECRET=cli-secret",
	)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tablebookctl dev")
}

func TestToken(t *testing.T) {
	env := memoryEnv(t)

	out, err := run(t, "--env-file", env, "token", "ops-1", "--role", "operator")
	require.NoError(t, err)

	claims, err := middleware.ParseToken("cli-secret", strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.UserID)
	assert.Equal(t, middleware.RoleOperator, claims.Role)

	_, err = run(t, "--env-file", env, "token", "ops-1", "--role", "admin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--role")
}

func TestMigrateList(t *testing.T) {
	out, err := run(t, "migrate", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "001_reservation_core.sql")
}

func TestSweep_MemoryStore(t *testing.T) {
	out, err := run(t, "--env-file", memoryEnv(t), "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "scanned=0 expired=0 promoted=0 failed=0")
}

func TestSlotPublish(t *testing.T) {
	env := memoryEnv(t)

	out, err := run(t, "--env-file", env, "slot", "publish",
		"--id", "slot-9",
		"--venue", "venue-1",
		"--starts-at", "2030-01-02T19:00:00Z",
		"--party-min", "2",
		"--party-max", "6",
		"--tier", "elevated",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "published slot slot-9 (elevated tier, party 2-6")

	_, err = run(t, "--env-file", env, "slot", "publish", "--venue", "venue-1", "--starts-at", "tomorrow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RFC3339")
}

func TestDinerSetTier_MemoryStoreUnsupported(t *testing.T) {
	env := memoryEnv(t)

	_, err := run(t, "--env-file", env, "diner", "set-tier", "diner-1", "gold")
	require.Error(t, err)

	_, err = run(t, "--env-file", env, "diner", "set-tier", "diner-1", "elevated")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support tier updates")

	out, err := run(t, "--env-file", env, "diner", "show", "diner-1")
	require.NoError(t, err)
	assert.Contains(t, out, "tier=standard active_bookings=0")
}
