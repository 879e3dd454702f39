package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/agentsdk/agentsdk/agentcore"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToSubscribersInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []int

	_, err := bus.Register(SubscriberFunc(func(ctx context.Context, event agentcore.Event) error {
		order = append(order, 1)
		return nil
	}))
	require.NoError(t, err)
	_, err = bus.Register(SubscriberFunc(func(ctx context.Context, event agentcore.Event) error {
		order = append(order, 2)
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.PublishContext(context.Background(), agentcore.Event{Name: "test"}))
	require.Equal(t, []int{1, 2}, order)
}

func TestBusStopsFanOutAtFirstSubscriberError(t *testing.T) {
	bus := NewBus()
	var calledSecond bool

	_, err := bus.Register(SubscriberFunc(func(ctx context.Context, event agentcore.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, err)
	_, err = bus.Register(SubscriberFunc(func(ctx context.Context, event agentcore.Event) error {
		calledSecond = true
		return nil
	}))
	require.NoError(t, err)

	err = bus.PublishContext(context.Background(), agentcore.Event{Name: "test"})
	require.Error(t, err)
	require.False(t, calledSecond)
}

func TestSubscriptionCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	bus := NewBus()
	var count int

	sub, err := bus.Register(SubscriberFunc(func(ctx context.Context, event agentcore.Event) error {
		count++
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.PublishContext(context.Background(), agentcore.Event{Name: "a"}))
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, bus.PublishContext(context.Background(), agentcore.Event{Name: "b"}))

	require.Equal(t, 1, count)
}

func TestRegisterRejectsNilSubscriber(t *testing.T) {
	bus := NewBus()
	_, err := bus.Register(nil)
	require.Error(t, err)
}

func TestPublishSatisfiesEventBusInterface(t *testing.T) {
	var _ agentcore.EventBus = NewBus()
}
