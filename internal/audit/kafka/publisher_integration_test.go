//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"tranche/internal/audit"
	auditkafka "tranche/internal/audit/kafka"
	id "tranche/pkg/domain"
	"tranche/pkg/testutil/containers"
)

const topic = "tranche.audit"

func TestPublisherRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	broker := containers.NewRedpandaContainer(t)

	adminClient, err := kgo.NewClient(kgo.SeedBrokers(broker.Brokers))
	require.NoError(t, err)
	defer adminClient.Close()
	_, err = kadm.NewClient(adminClient).CreateTopics(ctx, 1, 1, nil, topic)
	require.NoError(t, err)

	publisher, err := auditkafka.New(broker.Brokers, topic)
	require.NoError(t, err)
	defer publisher.Close()

	actor := id.AccountID(uuid.New())
	event := audit.Event{
		Category:  audit.CategoryCompliance,
		Action:    audit.ActionForcedTransfer,
		Timestamp: time.Now().UTC(),
		Actor:     actor,
		Asset:     "INV-1",
		Amount:    "25",
		Reason:    "court order",
		RequestID: uuid.NewString(),
	}
	require.NoError(t, publisher.Emit(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, []byte("INV-1"), records[0].Key)

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, audit.ActionForcedTransfer, got.Action)
	require.Equal(t, actor, got.Actor)
	require.Equal(t, event.RequestID, got.RequestID)
}

// New returns nil when brokers are not configured so callers can skip the
// publisher entirely.
func TestNewWithoutBrokers(t *testing.T) {
	publisher, err := auditkafka.New("", topic)
	require.NoError(t, err)
	require.Nil(t, publisher)
}
