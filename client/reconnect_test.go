package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicySchedule(t *testing.T) {
	p := newReconnectPolicy(time.Second, 3)

	delay, attempt, ok := p.next()
	assert.True(t, ok)
	assert.Equal(t, 1, attempt)
	assert.Equal(t, time.Second, delay)

	delay, attempt, ok = p.next()
	assert.True(t, ok)
	assert.Equal(t, 2, attempt)
	assert.Equal(t, 2*time.Second, delay)

	delay, attempt, ok = p.next()
	assert.True(t, ok)
	assert.Equal(t, 3, attempt)
	assert.Equal(t, 4*time.Second, delay)

	_, _, ok = p.next()
	assert.False(t, ok)
}

func TestReconnectPolicyExhaustionIsSticky(t *testing.T) {
	p := newReconnectPolicy(time.Second, 1)

	_, _, ok := p.next()
	assert.True(t, ok)
	for i := 0; i < 3; i++ {
		_, _, ok = p.next()
		assert.False(t, ok)
	}
}

func TestReconnectPolicyReset(t *testing.T) {
	p := newReconnectPolicy(500*time.Millisecond, 2)

	p.next()
	p.next()
	_, _, ok := p.next()
	assert.False(t, ok)

	p.reset()

	delay, attempt, ok := p.next()
	assert.True(t, ok)
	assert.Equal(t, 1, attempt)
	assert.Equal(t, 500*time.Millisecond, delay)
}
