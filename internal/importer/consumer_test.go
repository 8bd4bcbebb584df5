package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/parts-catalog-importer/internal/catalog"
	"github.com/maltedev/parts-catalog-importer/pkg/logger"
)

type MockStreamClient struct {
	mock.Mock
}

func (m *MockStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (m *MockStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.Get(0).([]redis.XStream))
	}
	return cmd
}

func (m *MockStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	args := m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(int64(len(ids)))
	}
	return cmd
}

type recordingImporter struct {
	queries  []string
	outcomes map[string]*Outcome
}

func (r *recordingImporter) ImportProduct(_ context.Context, q string) *Outcome {
	r.queries = append(r.queries, q)
	if out, ok := r.outcomes[q]; ok {
		return out
	}
	return &Outcome{Query: q, Status: StatusCommitted, State: StateCommitted}
}

func newTestConsumer(client StreamClient, imp ProductImporter) *StreamConsumer {
	return NewStreamConsumer(client, imp, ConsumerConfig{
		Stream: "stream:catalog_import_requests",
		Group:  "catalog-importer",
	}, logger.Discard())
}

func message(id, query string) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]interface{}{"query": query}}
}

func TestStreamConsumer_Poll(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)
	imp := &recordingImporter{outcomes: map[string]*Outcome{
		"0000": {Query: "0000", Status: StatusFailed, State: StateFailed, Reason: catalog.KindNotFound},
		"9999": {Query: "9999", Status: StatusFailed, State: StateFailed, Reason: catalog.KindCanceled},
	}}

	client.On("XReadGroup", ctx, mock.MatchedBy(func(a *redis.XReadGroupArgs) bool {
		return a.Group == "catalog-importer" && a.Consumer == "consumer-1" &&
			assert.ObjectsAreEqual([]string{"stream:catalog_import_requests", ">"}, a.Streams)
	})).Return([]redis.XStream{{
		Stream: "stream:catalog_import_requests",
		Messages: []redis.XMessage{
			message("1-0", "2498"),
			message("2-0", "0000"),
			message("3-0", "9999"),
			{ID: "4-0", Values: map[string]interface{}{"other": "x"}},
		},
	}}, nil).Once()

	for _, id := range []string{"1-0", "2-0", "4-0"} {
		client.On("XAck", ctx, "stream:catalog_import_requests", "catalog-importer", []string{id}).Return(nil).Once()
	}

	require.NoError(t, newTestConsumer(client, imp).poll(ctx))

	assert.Equal(t, []string{"2498", "0000", "9999"}, imp.queries)
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "XAck", ctx, "stream:catalog_import_requests", "catalog-importer", []string{"3-0"})
}

func TestStreamConsumer_PollEmpty(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)
	imp := &recordingImporter{}

	client.On("XReadGroup", ctx, mock.Anything).Return([]redis.XStream(nil), redis.Nil).Once()

	require.NoError(t, newTestConsumer(client, imp).poll(ctx))
	assert.Empty(t, imp.queries)
}

func TestStreamConsumer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := new(MockStreamClient)
	client.On("XGroupCreateMkStream", ctx, "stream:catalog_import_requests", "catalog-importer", "0").
		Return(errors.New("BUSYGROUP Consumer Group name already exists"))
	client.On("XReadGroup", ctx, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return([]redis.XStream(nil), redis.Nil)

	err := newTestConsumer(client, &recordingImporter{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	client.AssertExpectations(t)
}

func TestStreamConsumer_RunGroupCreateFails(t *testing.T) {
	ctx := context.Background()
	client := new(MockStreamClient)
	client.On("XGroupCreateMkStream", ctx, mock.Anything, mock.Anything, "0").
		Return(errors.New("connection refused"))

	err := newTestConsumer(client, &recordingImporter{}).Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create consumer group")
	client.AssertNotCalled(t, "XReadGroup", mock.Anything, mock.Anything)
}
