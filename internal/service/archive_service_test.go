package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomex/settle/internal/domain"
)

func newArchiveService(archiver domain.Archiver, locks domain.LockManager) *ArchiveService {
	clock := domain.ClockFunc(func() time.Time { return testNow })
	return NewArchiveService(archiver, locks, clock, 30*24*time.Hour, time.Hour, newTestLogger())
}

func TestArchiveService_RunOnce(t *testing.T) {
	archiver := &fakeArchiver{fillCount: 12, auditCount: 3}
	locks := &fakeLocks{}
	svc := newArchiveService(archiver, locks)

	require.NoError(t, svc.RunOnce(context.Background()))

	wantCutoff := testNow.Add(-30 * 24 * time.Hour)
	require.Len(t, archiver.fillCutoffs, 1)
	assert.Equal(t, wantCutoff, archiver.fillCutoffs[0])
	require.Len(t, archiver.auditCutoffs, 1)
	assert.Equal(t, wantCutoff, archiver.auditCutoffs[0])

	// The lock was taken and handed back.
	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released)
}

func TestArchiveService_RunOnce_LockHeld(t *testing.T) {
	archiver := &fakeArchiver{}
	locks := &fakeLocks{held: true}
	svc := newArchiveService(archiver, locks)

	err := svc.RunOnce(context.Background())
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Empty(t, archiver.fillCutoffs)
	assert.Empty(t, archiver.auditCutoffs)
}

func TestArchiveService_RunOnce_ExportFailureReleasesLock(t *testing.T) {
	archiver := &fakeArchiver{err: errors.New("bucket gone")}
	locks := &fakeLocks{}
	svc := newArchiveService(archiver, locks)

	err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, locks.released)
}

func TestArchiveService_Run_StopsOnContext(t *testing.T) {
	archiver := &fakeArchiver{}
	locks := &fakeLocks{}
	svc := NewArchiveService(archiver, locks, domain.SystemClock, time.Hour, 10*time.Millisecond, newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	// At least one tick fired within the window.
	assert.NotEmpty(t, archiver.fillCutoffs)
}
