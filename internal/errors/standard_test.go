package errors

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestCleanupFailure_CategoryAndUnwrap(t *testing.T) {
	cause := errors.New("eviction scan failed")
	err := CleanupFailure(cause)

	require.Equal(t, CategoryRecoverableLogged, err.Category)
	require.Equal(t, "CLEANUP_FAILURE", err.Code)
	require.Contains(t, err.Error(), "eviction scan failed")
	require.ErrorIs(t, err, cause)
}

func TestUnknownSnapshotID_CategoryInvalidInputAndFields(t *testing.T) {
	err := UnknownSnapshotID(12345)

	require.Equal(t, CategoryInvalidInput, err.Category)
	require.Contains(t, err.Message, "12345")
	require.Equal(t, uint64(12345), err.Fields["snapshot_id"])
}

func TestDetectionNotActive_CategoryProgrammerError(t *testing.T) {
	err := DetectionNotActive()

	require.Equal(t, CategoryProgrammerError, err.Category)
	require.Nil(t, err.cause)
}

func TestCoreError_LogAttachesStructuredFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	err := UnknownSnapshotID(999)

	err.Log(logger.WithField("component", "test"))

	require.Len(t, hook.Entries, 1)
	entry := hook.Entries[0]
	require.Equal(t, logrus.WarnLevel, entry.Level)
	require.Equal(t, "UNKNOWN_SNAPSHOT_ID", entry.Data["code"])
	require.Equal(t, uint64(999), entry.Data["snapshot_id"])
}
