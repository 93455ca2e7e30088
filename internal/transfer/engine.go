// Package transfer runs uploads and downloads for one account and
// announces their progress on a Bus.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Ning0612/ocsync/internal/adapter/local"
	"github.com/Ning0612/ocsync/internal/core/checksum"
	"github.com/Ning0612/ocsync/internal/domain"
	"github.com/Ning0612/ocsync/internal/logger"
	"github.com/Ning0612/ocsync/internal/progress"
	"github.com/Ning0612/ocsync/internal/remote"
)

// Store is the part of the FileRecord store the engine writes.
type Store interface {
	GetByPath(ctx context.Context, remotePath string) (*domain.FileRecord, error)
	GetByStoragePath(ctx context.Context, p string) (*domain.FileRecord, error)
	Upsert(ctx context.Context, f *domain.FileRecord) error
	SaveConflict(ctx context.Context, id int64, etagInConflict string) error
}

// Options wires an Engine.
type Options struct {
	Account string
	Server  remote.Server
	Store   Store
	Uploads domain.UploadLog
	Local   *local.Storage
	Bus     *Bus
	// Journal is optional; without it queued jobs do not survive a restart.
	Journal  *Journal
	Reporter progress.Reporter
	Workers  int
	Now      func() time.Time
}

// Engine implements domain.TransferEngine with a job queue and a pool of
// workers.
type Engine struct {
	account  string
	server   remote.Server
	store    Store
	uploads  domain.UploadLog
	local    *local.Storage
	bus      *Bus
	journal  *Journal
	reporter progress.Reporter
	workers  int
	now      func() time.Time
	log      logger.Logger

	queue *Queue[*Job]

	mu      sync.Mutex
	pending map[string]*Job              // queued or running, by kind:path
	running map[string]context.CancelFunc // by kind:path
	closed  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ domain.TransferEngine = (*Engine)(nil)

// NewEngine creates an engine; call Start to run its workers.
func NewEngine(opts Options) *Engine {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.NullReporter{}
	}
	return &Engine{
		account:  opts.Account,
		server:   opts.Server,
		store:    opts.Store,
		uploads:  opts.Uploads,
		local:    opts.Local,
		bus:      opts.Bus,
		journal:  opts.Journal,
		reporter: opts.Reporter,
		workers:  opts.Workers,
		now:      opts.Now,
		log:      logger.With("component", "transfer", "account", opts.Account),
		queue:    NewQueue[*Job](),
		pending:  make(map[string]*Job),
		running:  make(map[string]context.CancelFunc),
	}
}

// Start requeues journaled jobs and launches the workers. Workers stop
// when ctx is done or Close is called.
func (e *Engine) Start(ctx context.Context) error {
	if e.journal != nil {
		jobs, err := e.journal.Pending()
		if err != nil {
			return fmt.Errorf("recover transfers: %w", err)
		}
		for i := range jobs {
			job := jobs[i]
			if job.Account != e.account {
				continue
			}
			e.log.Info("resuming transfer", "kind", job.Kind, "path", job.RemotePath)
			e.enqueue(&job, false)
		}
	}

	ctx, e.cancel = context.WithCancel(ctx)
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				job, ok := e.queue.Get()
				if !ok {
					return
				}
				e.run(ctx, job)
			}
		}()
	}
	go func() {
		<-ctx.Done()
		e.queue.Close()
	}()
	return nil
}

// Close stops the workers. Running transfers are interrupted but stay in
// the journal.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.queue.Close()
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Pending counts queued and running transfers.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// RequestDownload queues a download of file into the account save dir.
func (e *Engine) RequestDownload(ctx context.Context, account string, file domain.FileRecord) error {
	if account != e.account {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAccount, account)
	}
	if file.IsFolder {
		return fmt.Errorf("download %s: %w", file.RemotePath, domain.ErrNotFile)
	}
	job := &Job{
		Kind:       JobDownload,
		Account:    account,
		RemotePath: domain.CleanPath(file.RemotePath),
	}
	if !e.enqueue(job, true) {
		return nil
	}
	e.bus.Publish(domain.TransferEvent{
		Type:        domain.EventDownloadAdded,
		AccountName: account,
		RemotePath:  job.RemotePath,
		Success:     true,
	})
	return nil
}

// RequestUpload queues one upload per path pair.
func (e *Engine) RequestUpload(ctx context.Context, req domain.UploadRequest) error {
	if req.Account != e.account {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAccount, req.Account)
	}
	if len(req.LocalPaths) != len(req.RemotePaths) {
		return fmt.Errorf("%w: %d local, %d remote", domain.ErrMismatchedPaths, len(req.LocalPaths), len(req.RemotePaths))
	}
	for i := range req.LocalPaths {
		e.enqueue(&Job{
			Kind:           JobUpload,
			Account:        req.Account,
			RemotePath:     domain.CleanPath(req.RemotePaths[i]),
			LocalPath:      req.LocalPaths[i],
			Behavior:       req.Behavior,
			CreateParents:  req.CreateParents,
			ForceOverwrite: req.ForceOverwrite,
			Origin:         req.Origin,
			LinkedTo:       req.LinkedTo,
		}, true)
	}
	return nil
}

// Cancel drops queued transfers of file and interrupts running ones.
// For a folder every transfer below it is cancelled.
func (e *Engine) Cancel(ctx context.Context, account string, file domain.FileRecord) error {
	if account != e.account {
		return fmt.Errorf("%w: %s", domain.ErrUnknownAccount, account)
	}
	target := domain.CleanPath(file.RemotePath)
	match := func(j *Job) bool {
		if file.IsFolder {
			return domain.IsDescendant(j.RemotePath, target)
		}
		return j.RemotePath == target
	}

	dropped := e.queue.Remove(match)

	e.mu.Lock()
	for _, job := range dropped {
		delete(e.pending, job.key())
	}
	for key, job := range e.pending {
		if match(job) {
			if cancel := e.running[key]; cancel != nil {
				cancel()
			}
		}
	}
	e.mu.Unlock()

	for _, job := range dropped {
		e.forget(job)
		e.log.Info("transfer cancelled", "kind", job.Kind, "path", job.RemotePath)
		e.publishFinished(job, job.RemotePath, context.Canceled)
		if job.Kind == JobUpload {
			e.saveUploadResult(ctx, job.RemotePath, domain.UploadCancelled)
		}
	}
	return nil
}

// IsDownloading reports whether file, or for a folder anything below it,
// is queued or being downloaded.
func (e *Engine) IsDownloading(account string, file domain.FileRecord) bool {
	if account != e.account {
		return false
	}
	target := domain.CleanPath(file.RemotePath)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !file.IsFolder {
		_, ok := e.pending[JobDownload.String()+":"+target]
		return ok
	}
	for _, job := range e.pending {
		if job.Kind == JobDownload && domain.IsDescendant(job.RemotePath, target) {
			return true
		}
	}
	return false
}

// enqueue adds job unless the same transfer is already pending.
func (e *Engine) enqueue(job *Job, persist bool) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	if _, dup := e.pending[job.key()]; dup {
		e.mu.Unlock()
		e.log.Debug("transfer already pending", "kind", job.Kind, "path", job.RemotePath)
		return false
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
		job.Created = e.now()
	}
	e.pending[job.key()] = job
	e.mu.Unlock()

	if persist && e.journal != nil {
		if err := e.journal.Put(job); err != nil {
			e.log.Warn("failed to journal transfer", "path", job.RemotePath, "error", err)
		}
	}
	return e.queue.Add(job)
}

func (e *Engine) forget(job *Job) {
	if e.journal != nil {
		if err := e.journal.Delete(job.Seq); err != nil {
			e.log.Warn("failed to drop journaled transfer", "path", job.RemotePath, "error", err)
		}
	}
}

func (e *Engine) run(parent context.Context, job *Job) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	e.mu.Lock()
	if e.pending[job.key()] != job {
		// cancelled while waiting
		e.mu.Unlock()
		return
	}
	e.running[job.key()] = cancel
	e.mu.Unlock()

	var (
		finalPath string
		err       error
	)
	switch job.Kind {
	case JobDownload:
		finalPath, err = e.download(ctx, job)
	case JobUpload:
		finalPath, err = e.upload(ctx, job)
	}

	e.mu.Lock()
	delete(e.running, job.key())
	delete(e.pending, job.key())
	shuttingDown := e.closed || parent.Err() != nil
	e.mu.Unlock()

	if shuttingDown && err != nil && remote.CodeFor(err) == domain.CodeCancelled {
		// 關閉中：保留在 journal，下次啟動再續傳
		return
	}
	e.forget(job)

	if err != nil {
		e.log.Warn("transfer failed", "kind", job.Kind, "path", job.RemotePath, "error", err)
	} else {
		e.log.Info("transfer finished", "kind", job.Kind, "path", finalPath)
	}
	e.publishFinished(job, finalPath, err)
}

func (e *Engine) publishFinished(job *Job, finalPath string, err error) {
	ev := domain.TransferEvent{
		AccountName:  job.Account,
		RemotePath:   finalPath,
		LinkedToPath: job.LinkedTo,
		Success:      err == nil,
		Err:          err,
	}
	if job.Kind == JobDownload {
		ev.Type = domain.EventDownloadFinished
	} else {
		ev.Type = domain.EventUploadFinished
		if finalPath != job.RemotePath {
			ev.OldRemotePath = job.RemotePath
		}
	}
	e.bus.Publish(ev)
}

func (e *Engine) download(ctx context.Context, job *Job) (string, error) {
	p := job.RemotePath

	props, err := e.server.Stat(ctx, p)
	if err != nil {
		return p, err
	}
	body, err := e.server.Download(ctx, p)
	if err != nil {
		return p, err
	}
	defer body.Close()

	tr := e.reporter.Start(progress.Download, job.Account, p, props.Size)
	hasher, _ := checksum.NewHasher(checksum.SHA256)
	storagePath, err := e.local.Write(ctx, p, io.TeeReader(progress.NewReader(body, tr), hasher))
	if err != nil {
		tr.Fail(err)
		return p, remote.Classify("download", p, err)
	}
	tr.Complete()

	f, err := e.store.GetByPath(ctx, p)
	if err != nil {
		return p, err
	}
	if f == nil {
		// removed from the store while downloading
		e.local.Remove(storagePath)
		return p, remote.Classify("download", p, domain.ErrNotFound)
	}

	now := e.now().UnixMilli()
	f.StoragePath = storagePath
	f.ETag = props.ETag
	f.Size = hasher.Size()
	f.ModifiedAt = props.ModifiedAt
	if props.MimeType != "" {
		f.MimeType = props.MimeType
	}
	f.Checksum = hasher.Sum()
	f.LastSyncForData = now
	f.LastSyncForProperties = now
	f.LocalModified, _ = e.local.ModTime(storagePath)
	f.ETagInConflict = ""
	if err := e.store.Upsert(ctx, f); err != nil {
		return p, err
	}
	return p, nil
}

func (e *Engine) upload(ctx context.Context, job *Job) (string, error) {
	target := job.RemotePath
	e.bus.Publish(domain.TransferEvent{
		Type:         domain.EventUploadStarted,
		AccountName:  job.Account,
		RemotePath:   target,
		LinkedToPath: job.LinkedTo,
		Success:      true,
	})

	target, err := e.uploadTarget(ctx, job)
	if err != nil {
		e.saveUploadResult(ctx, job.RemotePath, remote.UploadResultFor(err))
		return job.RemotePath, err
	}

	src, err := e.local.Open(job.LocalPath)
	if err != nil {
		result := domain.UploadFileError
		if errors.Is(err, domain.ErrNotFound) {
			result = domain.UploadFileNotFound
		}
		e.saveUploadResult(ctx, job.RemotePath, result)
		return job.RemotePath, remote.Classify("upload", job.LocalPath, err)
	}
	defer src.Close()
	info, _ := src.Stat()
	var size int64
	if info != nil {
		size = info.Size()
	}

	if job.CreateParents {
		if parent := domain.ParentPath(target); parent != domain.RootPath {
			if err := e.server.MkdirAll(ctx, parent); err != nil {
				e.saveUploadResult(ctx, job.RemotePath, domain.UploadFolderError)
				return job.RemotePath, err
			}
		}
	}

	tr := e.reporter.Start(progress.Upload, job.Account, target, size)
	hasher, _ := checksum.NewHasher(checksum.SHA256)
	if err := e.server.Upload(ctx, target, io.TeeReader(progress.NewReader(src, tr), hasher)); err != nil {
		tr.Fail(err)
		e.saveUploadResult(ctx, job.RemotePath, remote.UploadResultFor(err))
		return job.RemotePath, err
	}
	tr.Complete()
	src.Close()

	props, err := e.server.Stat(ctx, target)
	if err != nil {
		e.saveUploadResult(ctx, job.RemotePath, remote.UploadResultFor(err))
		return job.RemotePath, err
	}

	if err := e.saveUploaded(ctx, job, target, props, hasher.Sum()); err != nil {
		e.saveUploadResult(ctx, target, domain.UploadUnknownError)
		return target, err
	}
	e.saveUploadResult(ctx, target, domain.UploadSucceeded)
	if target != job.RemotePath {
		e.saveUploadResult(ctx, job.RemotePath, domain.UploadSucceeded)
	}
	return target, nil
}

// uploadTarget applies the overwrite policy: user uploads never replace an
// existing file and get a free name instead; sync uploads fail with a
// conflict when the server copy moved since the last sync.
func (e *Engine) uploadTarget(ctx context.Context, job *Job) (string, error) {
	if job.ForceOverwrite {
		return job.RemotePath, nil
	}

	switch job.Origin {
	case domain.OriginUser:
		return AvailableName(ctx, job.RemotePath, func(ctx context.Context, p string) (bool, error) {
			return remote.Exists(ctx, e.server, p)
		})

	case domain.OriginSync:
		known, err := e.store.GetByPath(ctx, job.RemotePath)
		if err != nil || known == nil || known.ETag == "" {
			return job.RemotePath, err
		}
		props, err := e.server.Stat(ctx, job.RemotePath)
		if remote.CodeFor(err) == domain.CodeFileNotFound {
			return job.RemotePath, nil
		}
		if err != nil {
			return job.RemotePath, err
		}
		if props.ETag != known.ETag {
			if err := e.store.SaveConflict(ctx, known.ID, props.ETag); err != nil {
				return job.RemotePath, err
			}
			return job.RemotePath, remote.Classify("upload", job.RemotePath,
				fmt.Errorf("%w: server has %s, expected %s", domain.ErrSyncConflict, props.ETag, known.ETag))
		}
	}
	return job.RemotePath, nil
}

// saveUploaded records the uploaded file and places the local copy
// according to the upload behavior.
func (e *Engine) saveUploaded(ctx context.Context, job *Job, target string, props domain.FileRecord, sum string) error {
	storagePath := ""
	switch job.Behavior {
	case domain.BehaviorCopy, domain.BehaviorMove:
		move := job.Behavior == domain.BehaviorMove
		adopted, err := e.local.Adopt(ctx, job.LocalPath, target, move)
		if err != nil {
			return fmt.Errorf("keep local copy of %s: %w", target, err)
		}
		storagePath = adopted

		if move && adopted != job.LocalPath {
			prev, err := e.store.GetByStoragePath(ctx, job.LocalPath)
			if err != nil {
				return err
			}
			if prev != nil && prev.RemotePath != target {
				prev.StoragePath = ""
				prev.LastSyncForData = 0
				prev.ETagInConflict = ""
				if err := e.store.Upsert(ctx, prev); err != nil {
					return err
				}
			}
		}
	}

	f, err := e.store.GetByPath(ctx, target)
	if err != nil {
		return err
	}
	if f == nil {
		parent, err := e.ensureFolder(ctx, domain.ParentPath(target))
		if err != nil {
			return err
		}
		f = &domain.FileRecord{RemotePath: target, ParentID: parent.ID}
	}

	now := e.now().UnixMilli()
	if props.RemoteID != "" {
		f.RemoteID = props.RemoteID
	}
	f.ETag = props.ETag
	f.Size = props.Size
	f.ModifiedAt = props.ModifiedAt
	f.MimeType = props.MimeType
	f.ETagInConflict = ""
	f.LastSyncForProperties = now
	if storagePath != "" {
		f.StoragePath = storagePath
		f.Checksum = sum
		f.LastSyncForData = now
		f.LocalModified, _ = e.local.ModTime(storagePath)
	}
	return e.store.Upsert(ctx, f)
}

// ensureFolder returns the record of folder p, creating records for it and
// its missing ancestors.
func (e *Engine) ensureFolder(ctx context.Context, p string) (*domain.FileRecord, error) {
	f, err := e.store.GetByPath(ctx, p)
	if err != nil || f != nil {
		return f, err
	}
	var parentID int64
	if p != domain.RootPath {
		parent, err := e.ensureFolder(ctx, domain.ParentPath(p))
		if err != nil {
			return nil, err
		}
		parentID = parent.ID
	}
	f = &domain.FileRecord{RemotePath: p, ParentID: parentID, IsFolder: true, MimeType: "httpd/unix-directory"}
	if err := e.store.Upsert(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (e *Engine) saveUploadResult(ctx context.Context, remotePath string, result domain.UploadResult) {
	if e.uploads == nil {
		return
	}
	// 記錄結果不受取消影響
	if err := e.uploads.SaveUploadResult(context.WithoutCancel(ctx), remotePath, result); err != nil {
		e.log.Warn("failed to save upload result", "path", remotePath, "error", err)
	}
}
