package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis"
	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/contractrag/internal/db"
)

func newMockStore(t *testing.T) (*Store, *mock.Client) {
	t.Helper()
	c := mock.NewClient(gomock.NewController(t))
	return NewStoreForTest(c), c
}

// cmdName matches any command whose first word is name.
func cmdName(name string) gomock.Matcher {
	return mock.MatchFn(func(cmd []string) bool { return len(cmd) > 0 && cmd[0] == name })
}

func asDBError(t *testing.T, err error) *db.Error {
	t.Helper()
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("err = %v (%T), want *db.Error", err, err)
	}
	return dbErr
}

func TestPing(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisString("PONG")))
	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(context.DeadlineExceeded))

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("first ping: %v", err)
	}
	err := s.Ping(context.Background())
	if dbErr := asDBError(t, err); dbErr.Op != db.OpPing {
		t.Errorf("op = %q", dbErr.Op)
	}
}

func TestNewStore_RequiresAddress(t *testing.T) {
	if _, err := NewStore(Config{}); err == nil {
		t.Fatal("expected error without addresses")
	}
}

func TestWaitForReady(t *testing.T) {
	t.Run("retries until pong", func(t *testing.T) {
		s, c := newMockStore(t)
		calls := 0
		c.EXPECT().
			Do(gomock.Any(), mock.Match("PING")).
			DoAndReturn(func(context.Context, rueidis.Completed) rueidis.RedisResult {
				if calls++; calls < 3 {
					return mock.ErrorResult(errors.New("connection refused"))
				}
				return mock.Result(mock.RedisString("PONG"))
			}).Times(3)

		if err := s.WaitForReady(context.Background(), 5*time.Second); err != nil {
			t.Fatalf("WaitForReady: %v", err)
		}
	})

	t.Run("timeout keeps last error", func(t *testing.T) {
		s, c := newMockStore(t)
		refused := errors.New("connection refused")
		c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.ErrorResult(refused)).AnyTimes()

		err := s.WaitForReady(context.Background(), 120*time.Millisecond)
		if !errors.Is(err, refused) || !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want the deadline joined with the ping failure", err)
		}
	})
}

func TestIsRedisErr(t *testing.T) {
	s, c := newMockStore(t)
	c.EXPECT().Do(gomock.Any(), mock.Match("PING")).Return(mock.Result(mock.RedisError("Unknown Index name")))

	err := s.do(context.Background(), s.b().Ping().Build()).Error()
	if !isRedisErr(err, "unknown index NAME") {
		t.Errorf("case-insensitive match failed for %v", err)
	}
	if isRedisErr(err, "already exists") {
		t.Error("unrelated message matched")
	}
	if isRedisErr(context.Canceled, "canceled") {
		t.Error("non-server error matched")
	}
}
