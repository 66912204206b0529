package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmux/opsmux/pkg/adapter"
	"github.com/opsmux/opsmux/pkg/connector"
	"github.com/opsmux/opsmux/pkg/credentials"
	"github.com/opsmux/opsmux/pkg/errors"
	"github.com/opsmux/opsmux/pkg/task"
)

const testSystem connector.SystemType = "fakesys"

// fakeClient tracks whether the executor closed it
type fakeClient struct {
	closed int32
}

func (c *fakeClient) Close() error {
	atomic.AddInt32(&c.closed, 1)
	return nil
}

func testConnector() *connector.Connector {
	return &connector.Connector{
		Name:   "test-conn",
		System: testSystem,
		Keys:   []connector.Key{{Type: "api_token", Value: "secret"}},
	}
}

// newTestExecutor builds a registry with one adapter whose handlers are
// chosen per task type.
func newTestExecutor(t *testing.T, tasks map[task.Type]adapter.TaskSpec) (*Executor, *fakeClient) {
	t.Helper()

	client := &fakeClient{}
	registry := adapter.NewRegistry()
	require.NoError(t, registry.Register(&adapter.Adapter{
		System: testSystem,
		Tasks:  tasks,
		RequiredKeySets: []connector.KeySet{
			connector.NewKeySet("api_token"),
		},
		NewClient: func(_ context.Context, _ credentials.Params) (interface{}, error) {
			return client, nil
		},
	}))
	return New(registry), client
}

func init() {
	credentials.RegisterMapping(testSystem, map[connector.KeyType]string{
		"api_token": "token",
	})
}

func TestExecute_NormalizesTableResult(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	exec, client := newTestExecutor(t, map[task.Type]adapter.TaskSpec{
		"execute_query": {
			Shape: task.ShapeTable,
			Handler: func(_ context.Context, _ interface{}, _ task.TimeRange, _ *task.Payload) (*task.Raw, error) {
				return &task.Raw{Table: &task.RawTable{
					RawQuery: "SELECT 1",
					Columns:  []string{"id", "active", "score", "seen"},
					Rows: [][]interface{}{
						{int64(7), true, 1.5, ts},
						{nil, false, int32(-2), []byte("raw")},
					},
					Total: 9000,
				}}, nil
			},
		},
	})

	payload := &task.Payload{Type: "execute_query", Query: &task.QueryPayload{Query: "SELECT 1"}}
	result, err := exec.Execute(context.Background(), testSystem, "execute_query", task.TimeRange{}, payload, testConnector())
	require.NoError(t, err)

	assert.Equal(t, task.ShapeTable, result.Shape)
	require.NotNil(t, result.Table)
	require.Len(t, result.Table.Rows, 2)

	first := result.Table.Rows[0].Fields
	assert.Equal(t, task.Field{Name: "id", Value: "7"}, first[0])
	assert.Equal(t, task.Field{Name: "active", Value: "true"}, first[1])
	assert.Equal(t, task.Field{Name: "score", Value: "1.5"}, first[2])
	assert.Equal(t, task.Field{Name: "seen", Value: "2024-05-01T12:00:00Z"}, first[3])

	second := result.Table.Rows[1].Fields
	assert.Equal(t, "", second[0].Value)
	assert.Equal(t, "-2", second[2].Value)
	assert.Equal(t, "raw", second[3].Value)

	// The handler-supplied total is passed through untouched.
	assert.Equal(t, int64(9000), result.Table.Total)

	assert.Equal(t, int32(1), atomic.LoadInt32(&client.closed))
}

func TestExecute_TotalZeroPassedThrough(t *testing.T) {
	exec, _ := newTestExecutor(t, map[task.Type]adapter.TaskSpec{
		"execute_query": {
			Shape: task.ShapeTable,
			Handler: func(_ context.Context, _ interface{}, _ task.TimeRange, _ *task.Payload) (*task.Raw, error) {
				return &task.Raw{Table: &task.RawTable{
					Columns: []string{"id"},
					Rows:    [][]interface{}{{1}, {2}},
					Total:   0,
				}}, nil
			},
		},
	})

	payload := &task.Payload{Type: "execute_query", Query: &task.QueryPayload{Query: "SELECT 1"}}
	result, err := exec.Execute(context.Background(), testSystem, "execute_query", task.TimeRange{}, payload, testConnector())
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Table.Total)
	assert.Len(t, result.Table.Rows, 2)
}

func TestExecute_TextAndCommandShapes(t *testing.T) {
	exec, _ := newTestExecutor(t, map[task.Type]adapter.TaskSpec{
		"send_message": {
			Shape: task.ShapeText,
			Handler: func(_ context.Context, _ interface{}, _ task.TimeRange, _ *task.Payload) (*task.Raw, error) {
				return &task.Raw{Text: "delivered"}, nil
			},
		},
		"describe": {
			Shape: task.ShapeCommandOutput,
			Handler: func(_ context.Context, _ interface{}, _ task.TimeRange, _ *task.Payload) (*task.Raw, error) {
				return &task.Raw{Commands: []task.CommandOutput{{Command: "describe x", Output: "ok"}}}, nil
			},
		},
	})

	msg := &task.Payload{Type: "send_message", Message: &task.MessagePayload{Channel: "#ops", Text: "hi"}}
	result, err := exec.Execute(context.Background(), testSystem, "send_message", task.TimeRange{}, msg, testConnector())
	require.NoError(t, err)
	assert.Equal(t, task.ShapeText, result.Shape)
	assert.Equal(t, "delivered", result.Text)

	cmd := &task.Payload{Type: "describe", Command: &task.CommandPayload{Target: "x"}}
	result, err = exec.Execute(context.Background(), testSystem, "describe", task.TimeRange{}, cmd, testConnector())
	require.NoError(t, err)
	assert.Equal(t, task.ShapeCommandOutput, result.Shape)
	require.Len(t, result.Commands, 1)
	assert.Equal(t, "ok", result.Commands[0].Output)
}

func TestExecute_UnknownSystem(t *testing.T) {
	exec := New(adapter.NewRegistry())

	payload := &task.Payload{Type: "execute_query", Query: &task.QueryPayload{Query: "SELECT 1"}}
	_, err := exec.Execute(context.Background(), "nope", "execute_query", task.TimeRange{}, payload, testConnector())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestExecute_UnsupportedTask(t *testing.T) {
	exec, _ := newTestExecutor(t, map[task.Type]adapter.TaskSpec{})

	payload := &task.Payload{Type: "execute_query", Query: &task.QueryPayload{Query: "SELECT 1"}}
	_, err := exec.Execute(context.Background(), testSystem, "execute_query", task.TimeRange{}, payload, testConnector())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedTask))
}

func TestExecute_MissingConnector(t *testing.T) {
	exec, _ := newTestExecutor(t, map[task.Type]adapter.TaskSpec{
		"execute_query": {Shape: task.ShapeTable, Handler: func(_ context.Context, _ interface{}, _ task.TimeRange, _ *task.Payload) (*task.Raw, error) {
			return nil, nil
		}},
	})

	payload := &task.Payload{Type: "execute_query", Query: &task.QueryPayload{Query: "SELECT 1"}}

	_, err := exec.Execute(context.Background(), testSystem, "execute_query", task.TimeRange{}, payload, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMissingConnector))

	empty := &connector.Connector{Name: "empty", System: testSystem}
	_, err = exec.Execute(context.Background(), testSystem, "execute_query", task.TimeRange{}, payload, empty)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMissingConnector))
}

func TestExecute_HandlerErrorWrapped(t *testing.T) {
	exec, client := newTestExecutor(t, map[task.Type]adapter.TaskSpec{
		"execute_query": {
			Shape: task.ShapeTable,
			Handler: func(_ context.Context, _ interface{}, _ task.TimeRange, _ *task.Payload) (*task.Raw, error) {
				return nil, fmt.Errorf("connection reset")
			},
		},
	})

	payload := &task.Payload{Type: "execute_query", Query: &task.QueryPayload{Query: "SELECT 1"}}
	_, err := exec.Execute(context.Background(), testSystem, "execute_query", task.TimeRange{}, payload, testConnector())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeHandler))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, int32(1), atomic.LoadInt32(&client.closed))
}

func TestExecute_Timeout(t *testing.T) {
	released := make(chan struct{})
	exec, _ := newTestExecutor(t, map[task.Type]adapter.TaskSpec{
		"execute_query": {
			Shape: task.ShapeTable,
			Handler: func(ctx context.Context, _ interface{}, _ task.TimeRange, _ *task.Payload) (*task.Raw, error) {
				defer close(released)
				<-ctx.Done()
				// Linger past the deadline the way a slow driver would.
				time.Sleep(300 * time.Millisecond)
				return nil, ctx.Err()
			},
		},
	})

	payload := &task.Payload{
		Type:  "execute_query",
		Query: &task.QueryPayload{Query: "SELECT pg_sleep(600)", TimeoutSeconds: 1},
	}

	start := time.Now()
	_, err := exec.Execute(context.Background(), testSystem, "execute_query", task.TimeRange{}, payload, testConnector())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
	assert.Less(t, elapsed, 5*time.Second)

	// The abandoned worker still winds down via its derived context.
	select {
	case <-released:
	case <-time.After(3 * time.Second):
		t.Fatal("worker context was never canceled")
	}
}

func TestExecute_CallerCancellation(t *testing.T) {
	exec, _ := newTestExecutor(t, map[task.Type]adapter.TaskSpec{
		"execute_query": {
			Shape: task.ShapeTable,
			Handler: func(ctx context.Context, _ interface{}, _ task.TimeRange, _ *task.Payload) (*task.Raw, error) {
				<-ctx.Done()
				time.Sleep(300 * time.Millisecond)
				return nil, ctx.Err()
			},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	payload := &task.Payload{Type: "execute_query", Query: &task.QueryPayload{Query: "SELECT 1"}}
	_, err := exec.Execute(ctx, testSystem, "execute_query", task.TimeRange{}, payload, testConnector())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

func TestExecute_NilRawBecomesUnknownShape(t *testing.T) {
	exec, _ := newTestExecutor(t, map[task.Type]adapter.TaskSpec{
		"execute_query": {
			Shape: task.ShapeTable,
			Handler: func(_ context.Context, _ interface{}, _ task.TimeRange, _ *task.Payload) (*task.Raw, error) {
				return nil, nil
			},
		},
	})

	payload := &task.Payload{Type: "execute_query", Query: &task.QueryPayload{Query: "SELECT 1"}}
	result, err := exec.Execute(context.Background(), testSystem, "execute_query", task.TimeRange{}, payload, testConnector())
	require.NoError(t, err)
	assert.Equal(t, task.ShapeUnknown, result.Shape)
}
