package commands

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xpense/backend/internal/services"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", "", "--storage", "memory", "--no-redis"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTotal(t *testing.T) {
	out, err := run(t, "total", "--accounts")
	require.NoError(t, err)
	assert.Contains(t, out, "ID  NAME")
	assert.Contains(t, out, "Total: 0")
}

func TestMigrate_MemoryStore(t *testing.T) {
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema is up to date")
}

func TestConvert(t *testing.T) {
	_, err := run(t, "convert", "USD", "RUB", "10")
	var notFoundErr *services.NotFoundError
	require.True(t, errors.As(err, &notFoundErr))
	assert.Equal(t, "USD/RUB", notFoundErr.ID)

	_, err = run(t, "convert", "USD", "RUB", "ten")
	assert.ErrorContains(t, err, "parsing amount")

	_, err = run(t, "convert", "USD", "RUB")
	assert.Error(t, err)
}

func TestSyncRates(t *testing.T) {
	out, err := run(t, "sync-rates")
	require.NoError(t, err)
	assert.Contains(t, out, "Rates were never synced", "nothing cached for the base currency")

	_, err = run(t, "sync-rates", "--from", "USD")
	assert.ErrorContains(t, err, "must be given together")
}

func TestUnknownStorage(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", "", "--storage", "sqlite", "--no-redis", "total"})
	assert.ErrorContains(t, cmd.ExecuteContext(context.Background()), "unknown storage type")
}
