package cluster

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"golang.org/x/net/context"
)

func TestNewReconnectBackOff_Constant(t *testing.T) {
	bo := NewReconnectBackOff(30*time.Second, 0, 0)()
	for i := 0; i < 5; i++ {
		assert.Equal(t, 30*time.Second, bo.NextBackOff())
	}
}

func TestNewReconnectBackOff_ElapsedLimit(t *testing.T) {
	bo := NewReconnectBackOff(time.Second, 0, 3*time.Second)()
	assert.Equal(t, time.Second, bo.NextBackOff())
	assert.Equal(t, time.Second, bo.NextBackOff())
	assert.Equal(t, time.Second, bo.NextBackOff())
	assert.Equal(t, backoff.Stop, bo.NextBackOff())

	bo.Reset()
	assert.Equal(t, time.Second, bo.NextBackOff(), "Reset should restore the budget")
}

func TestNewReconnectBackOff_Exponential(t *testing.T) {
	bo := NewReconnectBackOff(time.Second, 8*time.Second, 0)()
	prev := time.Duration(0)
	for i := 0; i < 10; i++ {
		d := bo.NextBackOff()
		assert.NotEqual(t, backoff.Stop, d)
		// 10% jitter around a value capped at 8s
		assert.LessOrEqual(t, d, 8800*time.Millisecond)
		if i < 3 {
			assert.Greater(t, d, prev/2)
		}
		prev = d
	}
}

func TestClassifyDialError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{context.DeadlineExceeded, ErrConnectTimeout},
		{fmt.Errorf("dial: %w", syscall.ECONNREFUSED), ErrConnectRefused},
		{errors.New("no route to host"), ErrNetwork},
	}
	for _, tt := range tests {
		got := classifyDialError(tt.err)
		assert.ErrorIs(t, got, tt.want, "classifyDialError(%v)", tt.err)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "AwaitingLogin", StateAwaitingLogin.String())
	assert.Equal(t, "Closed", StateClosed.String())
	assert.Equal(t, "Error", CloseError.String())
	assert.Equal(t, "", CloseNone.String())
}
