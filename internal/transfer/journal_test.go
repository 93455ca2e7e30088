package transfer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ning0612/ocsync/internal/domain"
)

func TestJournal_PutPendingDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transfers.db")
	j, err := OpenJournal(path)
	require.NoError(t, err)

	first := &Job{ID: "1", Kind: JobDownload, Account: "a", RemotePath: "/a.txt"}
	second := &Job{ID: "2", Kind: JobUpload, Account: "a", RemotePath: "/b.txt", LocalPath: "/tmp/b.txt",
		Behavior: domain.BehaviorMove, Origin: domain.OriginConflict, ForceOverwrite: true}
	require.NoError(t, j.Put(first))
	require.NoError(t, j.Put(second))
	assert.NotZero(t, first.Seq)
	assert.Greater(t, second.Seq, first.Seq)

	require.NoError(t, j.Close())

	j, err = OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	jobs, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "/a.txt", jobs[0].RemotePath)
	assert.Equal(t, domain.BehaviorMove, jobs[1].Behavior)
	assert.True(t, jobs[1].ForceOverwrite)
	assert.Equal(t, domain.OriginConflict, jobs[1].Origin)

	require.NoError(t, j.Delete(first.Seq))
	require.NoError(t, j.Delete(0))
	jobs, err = j.Pending()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "2", jobs[0].ID)
}
