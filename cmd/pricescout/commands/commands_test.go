package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pricescout/searchservice/internal/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestSearchOfflineJSON(t *testing.T) {
	out, err := execute(t, "search", "--offline", "--json", "iphone", "13", "screen")
	require.NoError(t, err)

	var offers []domain.Offer
	require.NoError(t, json.Unmarshal([]byte(out), &offers))
	require.NotEmpty(t, offers)
	assert.Equal(t, "iPhone 13 OLED Screen Assembly", offers[0].Title)

	best := 0
	for _, offer := range offers {
		if offer.BestPrice {
			best++
		}
	}
	assert.Equal(t, 1, best)
}

func TestSearchOfflineTable(t *testing.T) {
	out, err := execute(t, "search", "--offline", "PlayStation 5 HDMI Port")
	require.NoError(t, err)
	assert.Contains(t, out, "PlayStation 5 HDMI Port Replacement")
	assert.Contains(t, out, "╭")
	assert.Contains(t, strings.ToLower(out), "best price")
}

func TestSearchOfflineNoMatch(t *testing.T) {
	out, err := execute(t, "search", "--offline", "zzzz", "qqqq")
	require.NoError(t, err)
	assert.Contains(t, out, `No offers found for "zzzz qqqq"`)
}

func TestSearchRequiresQuery(t *testing.T) {
	_, err := execute(t, "search", "--offline")
	require.Error(t, err)
}

func TestSearchRejectsNegativeBudget(t *testing.T) {
	_, err := execute(t, "search", "--offline", "--budget", "-1s", "ps5")
	require.Error(t, err)
}

func TestSourcesOffline(t *testing.T) {
	out, err := execute(t, "sources", "--offline")
	require.NoError(t, err)
	assert.Contains(t, out, "catalog")
	assert.Contains(t, out, "primary")
	assert.NotContains(t, out, "websearch")
}
