package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) *pubsub.Client {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublisherPublishesJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newTestClient(t)
	topic, err := client.CreateTopic(ctx, "logo-updates")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "logo-updates-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub := New(client, "logo.updated")
	defer pub.Close()

	id, err := pub.Publish(ctx, "logo-updates", map[string]string{
		"record_id": "rec1",
		"logo_url":  "https://i.ibb.co/abc/logo.png",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	received := make(chan *pubsub.Message, 1)
	recvCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
			stop()
		})
	}()

	select {
	case msg := <-received:
		var payload map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		require.Equal(t, "rec1", payload["record_id"])
		require.Equal(t, "logo.updated", msg.Attributes[EventAttribute])
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestPublisherReusesTopicHandle(t *testing.T) {
	client := newTestClient(t)
	pub := New(client, "")
	require.Same(t, pub.topic("a"), pub.topic("a"))
	pub.Close()
	require.Empty(t, pub.topics)
}

func TestPublisherValidation(t *testing.T) {
	_, err := New(nil, "").Publish(context.Background(), "t", "x")
	require.Error(t, err)

	client := newTestClient(t)
	_, err = New(client, "").Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = New(client, "").Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
}
