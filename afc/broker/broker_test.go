package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/afcflow/types"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b, err := NewRedis(client, RedisConfig{KeyPrefix: "afc:", StatusTTL: time.Hour}, zap.NewNop())
	require.NoError(t, err)
	return mr, b
}

func sampleJob(id string) *Job {
	return &Job{
		TaskID:     id,
		Hash:       "d41d8cd98f00b204e9800998ecf8427e",
		ConfigPath: "US/0123",
		Options:    types.OptDebug,
	}
}

func brokers(t *testing.T) map[string]Broker {
	_, r := setupTestRedis(t)
	return map[string]Broker{"memory": NewMemory(), "redis": r}
}

func TestBroker_SubmitAndNext(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.Submit(ctx, sampleJob("t1")))
			require.NoError(t, b.Submit(ctx, sampleJob("t2")))

			j1, err := b.Next(ctx, DefaultRequestType, time.Second)
			require.NoError(t, err)
			assert.Equal(t, "t1", j1.TaskID, "queue is FIFO")
			assert.Equal(t, DefaultRequestType, j1.RequestType)
			assert.Equal(t, types.OptDebug, j1.Options)
			assert.False(t, j1.SubmittedAt.IsZero())

			j2, err := b.Next(ctx, DefaultRequestType, time.Second)
			require.NoError(t, err)
			assert.Equal(t, "t2", j2.TaskID)
		})
	}
}

func TestBroker_StatusLifecycle(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			st, err := b.Status(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, types.TaskPending, st.State, "no record means pending")

			require.NoError(t, b.Publish(ctx, &Status{TaskID: "t1", State: types.TaskProgress, Percent: 40, Hash: "h", HistoryDir: "org/sn/ts", Options: types.OptGUI | types.OptDebug}))
			st, err = b.Status(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, types.TaskProgress, st.State)
			assert.Equal(t, 40, st.Percent)
			assert.Equal(t, "h", st.Hash)
			assert.Equal(t, "org/sn/ts", st.HistoryDir)
			assert.Equal(t, types.OptGUI|types.OptDebug, st.Options)

			require.NoError(t, b.Publish(ctx, &Status{TaskID: "t1", State: types.TaskSuccess, Percent: 100, Hash: "h"}))
			st, err = b.Status(ctx, "t1")
			require.NoError(t, err)
			assert.True(t, st.State.IsTerminal())
		})
	}
}

func TestBroker_SubmitValidates(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.ErrorIs(t, b.Submit(ctx, &Job{Hash: "h", ConfigPath: "c"}), ErrInvalidJob)
			assert.ErrorIs(t, b.Submit(ctx, &Job{TaskID: "t", ConfigPath: "c"}), ErrInvalidJob)
			assert.ErrorIs(t, b.Submit(ctx, &Job{TaskID: "t", Hash: "h"}), ErrInvalidJob)
		})
	}
}

func TestBroker_NextTimesOut(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Next(context.Background(), DefaultRequestType, 50*time.Millisecond)
			assert.ErrorIs(t, err, ErrNoJob)
		})
	}
}

func TestBroker_Closed(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.Close())
			assert.ErrorIs(t, b.Submit(context.Background(), sampleJob("x")), ErrBrokerClosed)
			_, err := b.Status(context.Background(), "x")
			assert.ErrorIs(t, err, ErrBrokerClosed)
			assert.ErrorIs(t, b.Ping(context.Background()), ErrBrokerClosed)
		})
	}
}

func TestRedis_KeyLayout(t *testing.T) {
	mr, b := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, b.Submit(ctx, sampleJob("t1")))
	items, err := mr.List("afc:queue:AP-AFC")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], `"task_id":"t1"`)

	require.NoError(t, b.Publish(ctx, &Status{TaskID: "t1", State: types.TaskFailure}))
	assert.Equal(t, "FAILURE", mr.HGet("afc:task:t1", "status"))
	assert.Equal(t, time.Hour, mr.TTL("afc:task:t1"))
}

func TestRedis_UnknownStatusRejected(t *testing.T) {
	mr, b := setupTestRedis(t)
	mr.HSet("afc:task:t1", "status", "RETRY")

	_, err := b.Status(context.Background(), "t1")
	assert.Error(t, err)
	assert.Error(t, b.Publish(context.Background(), &Status{TaskID: "t1", State: "RETRY"}))
}

func TestMemory_OnSubmitHook(t *testing.T) {
	m := NewMemory()
	var mu sync.Mutex
	var seen []string
	m.OnSubmit(func(j *Job) {
		mu.Lock()
		seen = append(seen, j.TaskID)
		mu.Unlock()
	})

	require.NoError(t, m.Submit(context.Background(), sampleJob("a")))
	require.NoError(t, m.Submit(context.Background(), sampleJob("b")))

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Len(t, m.Submitted(), 2)
}

func TestMemory_NextWakesOnSubmit(t *testing.T) {
	m := NewMemory()
	done := make(chan *Job, 1)
	go func() {
		j, _ := m.Next(context.Background(), DefaultRequestType, 5*time.Second)
		done <- j
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Submit(context.Background(), sampleJob("late")))

	select {
	case j := <-done:
		require.NotNil(t, j)
		assert.Equal(t, "late", j.TaskID)
	case <-time.After(2 * time.Second):
		t.Fatal("worker was not woken by submit")
	}
}

func TestNew(t *testing.T) {
	b, err := New(TypeMemory, RedisConfig{}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)

	_, err = New(TypeRedis, RedisConfig{}, nil, nil)
	assert.Error(t, err)

	_, err = New("kafka", RedisConfig{}, nil, nil)
	assert.Error(t, err)
}
