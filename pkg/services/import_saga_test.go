package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSaga_CompensatesInReverseOrder(t *testing.T) {
	sg := newSaga(zap.NewNop())

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		sg.register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	failures := sg.compensate(context.Background())

	assert.Equal(t, 0, failures)
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestSaga_ContinuesPastFailures(t *testing.T) {
	sg := newSaga(zap.NewNop())

	var ran []string
	sg.register("a", func(ctx context.Context) error {
		ran = append(ran, "a")
		return nil
	})
	sg.register("b", func(ctx context.Context) error {
		ran = append(ran, "b")
		return fmt.Errorf("delete failed")
	})
	sg.register("c", func(ctx context.Context) error {
		ran = append(ran, "c")
		return nil
	})

	failures := sg.compensate(context.Background())

	assert.Equal(t, 1, failures)
	assert.Equal(t, []string{"c", "b", "a"}, ran)
}

func TestSaga_RunsAfterCallerCancellation(t *testing.T) {
	sg := newSaga(zap.NewNop())

	var stepErr error
	ran := false
	sg.register("undo", func(ctx context.Context) error {
		ran = true
		stepErr = ctx.Err()
		return nil
	})

	// A client disconnect cancels the request context right when the
	// rollback matters most
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failures := sg.compensate(ctx)

	assert.Equal(t, 0, failures)
	assert.True(t, ran)
	assert.NoError(t, stepErr)
}

func TestSaga_EmptyIsNoop(t *testing.T) {
	sg := newSaga(zap.NewNop())
	assert.Equal(t, 0, sg.compensate(context.Background()))
}
