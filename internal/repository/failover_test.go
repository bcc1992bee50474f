package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetSession(ctx context.Context, sessionID string) ([]byte, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockRepo) SaveSession(ctx context.Context, sessionID string, data []byte) error {
	args := m.Called(ctx, sessionID, data)
	return args.Error(0)
}

func (m *mockRepo) DeleteSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func TestFailoverSessionRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverSessionRepository(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		data := []byte(`{"session_id":"1"}`)
		primary.On("GetSession", ctx, "1").Return(data, nil).Once()

		got, err := repo.GetSession(ctx, "1")
		assert.NoError(t, err)
		assert.Equal(t, data, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryMissFallsThrough", func(t *testing.T) {
		data := []byte(`{"session_id":"1b"}`)
		primary.On("GetSession", ctx, "1b").Return(nil, nil).Once()
		fallback.On("GetSession", ctx, "1b").Return(data, nil).Once()

		got, err := repo.GetSession(ctx, "1b")
		assert.NoError(t, err)
		assert.Equal(t, data, got)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		data := []byte(`{"session_id":"2"}`)
		primary.On("GetSession", ctx, "2").Return(nil, errors.New("fail")).Once()
		fallback.On("GetSession", ctx, "2").Return(data, nil).Once()

		got, err := repo.GetSession(ctx, "2")
		assert.NoError(t, err)
		assert.Equal(t, data, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SaveAlreadyDown", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().UnixNano())
		fallback.On("SaveSession", ctx, "3", []byte("x")).Return(nil).Once()

		assert.NoError(t, repo.SaveSession(ctx, "3", []byte("x")))
		fallback.AssertExpectations(t)
		primary.AssertNotCalled(t, "SaveSession", ctx, "3", []byte("x"))
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("SaveSession", ctx, "4", []byte("y")).Return(nil).Once()

		assert.NoError(t, repo.SaveSession(ctx, "4", []byte("y")))
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())
		primary.On("SaveSession", ctx, "5", []byte("z")).Return(errors.New("still down")).Once()
		fallback.On("SaveSession", ctx, "5", []byte("z")).Return(nil).Once()

		assert.NoError(t, repo.SaveSession(ctx, "5", []byte("z")))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DeleteClearsBoth", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("DeleteSession", ctx, "6").Return(nil).Once()
		fallback.On("DeleteSession", ctx, "6").Return(nil).Once()

		assert.NoError(t, repo.DeleteSession(ctx, "6"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("DeleteFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("DeleteSession", ctx, "7").Return(errors.New("fail")).Once()
		fallback.On("DeleteSession", ctx, "7").Return(nil).Once()

		assert.NoError(t, repo.DeleteSession(ctx, "7"))
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
