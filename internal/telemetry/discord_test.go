package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDiscordNotifierDisabledWithEmptyURL(t *testing.T) {
	d := NewDiscordNotifier("")
	assert.False(t, d.enabled)

	err := d.SendAlert("title", "message", 0)
	require.NoError(t, err, "SendAlert must no-op rather than error when disabled")
}

func TestGuardTripAlertFormatsSymbolAndReason(t *testing.T) {
	title, message, color := GuardTripAlert("BTCUSDT", "spread")
	assert.Equal(t, "Book guard tripped", title)
	assert.Contains(t, message, "BTCUSDT")
	assert.Contains(t, message, "spread")
	assert.NotZero(t, color)
}
