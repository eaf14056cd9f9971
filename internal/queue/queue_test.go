package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func startNATS(t *testing.T) (*natsserver.Server, *nats.Conn) {
	t.Helper()
	opts := &natsserver.Options{Port: -1}
	ns, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	return ns, nc
}

func TestStartConsumer_SuccessDoesNotRetryOrDLQ(t *testing.T) {
	ns, nc := startNATS(t)
	defer ns.Shutdown()
	defer nc.Close()

	var calls int32
	sub, err := StartConsumer(nc, slog.Default(), func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var dlqHits int32
	dlqSub, err := nc.Subscribe(DLQSubject, func(msg *nats.Msg) { atomic.AddInt32(&dlqHits, 1) })
	require.NoError(t, err)
	defer dlqSub.Unsubscribe()

	require.NoError(t, Publish(nc, Job{DocumentID: "doc-1", TaskID: "task-1"}))
	nc.Flush()
	time.Sleep(200 * time.Millisecond)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	require.EqualValues(t, 0, atomic.LoadInt32(&dlqHits))
}

func TestStartConsumer_RetriesThenSendsToDLQ(t *testing.T) {
	ns, nc := startNATS(t)
	defer ns.Shutdown()
	defer nc.Close()

	var calls int32
	sub, err := StartConsumer(nc, slog.Default(), func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("boom")
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	var mu sync.Mutex
	var dlqMsgs []dlqMessage
	dlqSub, err := nc.Subscribe(DLQSubject, func(msg *nats.Msg) {
		var d dlqMessage
		if err := json.Unmarshal(msg.Data, &d); err == nil {
			mu.Lock()
			dlqMsgs = append(dlqMsgs, d)
			mu.Unlock()
		}
	})
	require.NoError(t, err)
	defer dlqSub.Unsubscribe()

	require.NoError(t, Publish(nc, Job{DocumentID: "doc-2", TaskID: "task-2"}))
	nc.Flush()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dlqMsgs) == 1
	}, 2*time.Second, 20*time.Millisecond)

	require.EqualValues(t, MaxRetries, atomic.LoadInt32(&calls))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "doc-2", dlqMsgs[0].Job.DocumentID)
	require.Equal(t, MaxRetries, dlqMsgs[0].Retries)
	require.Equal(t, "boom", dlqMsgs[0].Error)
}

func TestStartConsumer_InvalidJSONIsDropped(t *testing.T) {
	ns, nc := startNATS(t)
	defer ns.Shutdown()
	defer nc.Close()

	var calls int32
	sub, err := StartConsumer(nc, slog.Default(), func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, nc.Publish(JobSubject, []byte("not json")))
	nc.Flush()
	time.Sleep(100 * time.Millisecond)

	require.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestStartSecondaryConsumer_FailureDoesNotRetry(t *testing.T) {
	ns, nc := startNATS(t)
	defer ns.Shutdown()
	defer nc.Close()

	var calls int32
	sub, err := StartSecondaryConsumer(nc, slog.Default(), func(ctx context.Context, job SecondaryJob) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("secondary view failed")
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, PublishSecondary(nc, SecondaryJob{DocumentID: "doc-3", TaskID: "task-3", View: "qa"}))
	nc.Flush()
	time.Sleep(200 * time.Millisecond)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "secondary failures are isolated, not retried")
}
