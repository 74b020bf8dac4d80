package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "coursegen:job-lock:content:01JOB", LockKey("content:01JOB"))
	assert.Equal(t, "coursegen:jobs:c-1", JobsChannel("c-1"))
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestTryLock_ReportsRedisErrors(t *testing.T) {
	s := New("127.0.0.1:1", "", 0)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	unlock, ok, err := s.Locker(time.Minute).TryLock(ctx, "syllabus:01JOB")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Nil(t, unlock)
}
