package transfer

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Ning0612/ocsync/internal/domain"
)

const jobsBucket = "PendingJobs"

// JobKind is the direction of a queued transfer.
type JobKind int

const (
	JobDownload JobKind = iota + 1
	JobUpload
)

func (k JobKind) String() string {
	if k == JobUpload {
		return "upload"
	}
	return "download"
}

// Job is one queued transfer, persisted until it finishes.
type Job struct {
	Seq        uint64
	ID         string
	Kind       JobKind
	Account    string
	RemotePath string
	// LocalPath is the upload source.
	LocalPath      string
	Behavior       domain.UploadBehavior
	CreateParents  bool
	ForceOverwrite bool
	Origin         domain.UploadOrigin
	LinkedTo       string
	Created        time.Time
}

func (j *Job) key() string {
	return j.Kind.String() + ":" + j.RemotePath
}

// Journal keeps queued jobs in a bolt file so a restart picks them up again.
type Journal struct {
	db *bolt.DB
}

// OpenJournal opens or creates the journal at fileName.
func OpenJournal(fileName string) (*Journal, error) {
	db, err := bolt.Open(fileName, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open transfer journal: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(jobsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open transfer journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Put stores job, assigning its Seq on first store.
func (j *Journal) Put(job *Job) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(jobsBucket))
		if job.Seq == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			job.Seq = seq
		}
		buf := bytes.Buffer{}
		if err := gob.NewEncoder(&buf).Encode(job); err != nil {
			return err
		}
		return b.Put(seqKey(job.Seq), buf.Bytes())
	})
}

// Delete drops the job with seq; unknown seqs are ignored.
func (j *Journal) Delete(seq uint64) error {
	if seq == 0 {
		return nil
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(jobsBucket)).Delete(seqKey(seq))
	})
}

// Pending returns stored jobs in the order they were queued.
func (j *Journal) Pending() ([]Job, error) {
	var jobs []Job
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(jobsBucket)).ForEach(func(k, v []byte) error {
			var job Job
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&job); err != nil {
				return fmt.Errorf("decode job %x: %w", k, err)
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	return jobs, err
}
