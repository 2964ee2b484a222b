package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectDelaySchedule(t *testing.T) {
	base := 1 * time.Second
	cap := 10 * time.Second

	assert.Equal(t, 2*time.Second, reconnectDelay(1, base, cap))
	assert.Equal(t, 4*time.Second, reconnectDelay(2, base, cap))
	assert.Equal(t, 8*time.Second, reconnectDelay(3, base, cap))
	assert.Equal(t, 10*time.Second, reconnectDelay(4, base, cap))
	assert.Equal(t, 10*time.Second, reconnectDelay(10, base, cap))
}

func TestReconnectDelayClampsBadInput(t *testing.T) {
	base := 1 * time.Second
	cap := 10 * time.Second

	assert.Equal(t, 2*time.Second, reconnectDelay(0, base, cap))
	assert.Equal(t, 2*time.Second, reconnectDelay(-3, base, cap))
	// Huge attempt counts must not overflow past the cap.
	assert.Equal(t, cap, reconnectDelay(200, base, cap))
}
