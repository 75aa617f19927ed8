// Package worker implements the process side of SPEC_FULL.md §4.16's
// worker queue: pull a job Pack off Redis, drive the file through
// backupfile's pipeline, and publish a result Pack back. Concurrency is
// bounded the same way the teacher's agent executor bounds parallel tool
// calls — a buffered channel as a semaphore, goroutines tracked by an
// errgroup.Group (internal/app/agent/executor.go: Execute) — and each job
// is wrapped in an OpenTelemetry span the same way the teacher's executor
// traces individual tool calls (executor.go: e.tracer.Start).
package worker

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pgbr/backupfile"
	"pgbr/errkit"
	"pgbr/internal/workqueue"
	"pgbr/storage/posix"
)

var tracer = otel.Tracer("pgbr-worker")

// Pool drives up to workerCount jobs concurrently against one Redis queue.
type Pool struct {
	client      *redis.Client
	storage     *posix.Driver
	log         *zap.Logger
	repoPath    string
	dequeueWait time.Duration
	limiter     chan struct{}
}

// NewPool builds a worker pool. workerCount is clamped to at least 1.
func NewPool(client *redis.Client, repoPath string, workerCount int, log *zap.Logger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		client:      client,
		storage:     posix.New(),
		log:         log,
		repoPath:    repoPath,
		dequeueWait: 5 * time.Second,
		limiter:     make(chan struct{}, workerCount),
	}
}

// Run pulls jobs until ctx is cancelled, fanning each one out to a bounded
// goroutine under an errgroup.Group; a panic processing one job is
// recovered and logged rather than taking down the pool (same shape as the
// teacher's per-goroutine recover in Execute).
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		default:
		}

		job, err := workqueue.Dequeue(ctx, p.client, p.dequeueWait)
		if err != nil {
			_ = g.Wait()
			return fmt.Errorf("worker: dequeue: %w", err)
		}
		if job == nil {
			continue
		}

		jobCopy := *job
		p.limiter <- struct{}{}
		g.Go(func() error {
			defer func() { <-p.limiter }()
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("worker: recovered panic processing job",
						zap.String("job_id", jobCopy.JobID), zap.Any("panic", r))
				}
			}()
			p.process(gctx, jobCopy)
			return nil
		})
	}
}

func (p *Pool) process(ctx context.Context, job workqueue.FileJob) {
	ctx, span := tracer.Start(ctx, "worker.process_job", trace.WithAttributes(
		attribute.String("pgbr.job_id", job.JobID),
		attribute.String("pgbr.operation", job.Operation),
		attribute.String("pgbr.path", job.Path),
		attribute.String("pgbr.stanza", job.Stanza),
	))
	defer span.End()

	if err := workqueue.Publish(ctx, p.client, job.StatusID, workqueue.Update{
		JobID: job.JobID, Status: "running",
	}); err != nil {
		p.log.Warn("worker: publish running status failed", zap.String("job_id", job.JobID), zap.Error(err))
	}

	hash, ferr := p.runJob(job)
	if ferr != nil {
		span.RecordError(ferr)
		p.log.Error("worker: job failed",
			zap.String("job_id", job.JobID), zap.String("kind", ferr.Kind().String()), zap.Error(ferr))
		if err := workqueue.Publish(ctx, p.client, job.StatusID, workqueue.Update{
			JobID: job.JobID, Status: "error", Error: ferr.Error(),
		}); err != nil {
			p.log.Warn("worker: publish error status failed", zap.String("job_id", job.JobID), zap.Error(err))
		}
		return
	}

	if err := workqueue.Publish(ctx, p.client, job.StatusID, workqueue.Update{
		JobID: job.JobID, Status: "completed", Manifest: fmt.Sprintf("%x", hash),
	}); err != nil {
		p.log.Warn("worker: publish completed status failed", zap.String("job_id", job.JobID), zap.Error(err))
	}
}

// runJob dispatches a backup or restore, returning the artifact's integrity
// hash on success. The artifact path is addressed by the source path and
// stanza rather than the job's own (freshly minted, one-off) ID, so a
// restore job for the same file finds the backup a prior job produced.
func (p *Pool) runJob(job workqueue.FileJob) ([]byte, *errkit.Error) {
	artifactPath := filepath.Join(p.repoPath, job.Stanza, artifactName(job.Path))

	switch job.Operation {
	case "backup":
		return p.runBackup(job, artifactPath)
	case "restore":
		return p.runRestore(job, artifactPath)
	default:
		return nil, errkit.New(errkit.KindOptionInvalid, "unknown job operation %q", job.Operation)
	}
}

func (p *Pool) runBackup(job workqueue.FileJob, artifactPath string) ([]byte, *errkit.Error) {
	src, err := p.storage.OpenRead(job.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := p.storage.OpenWrite(artifactPath, true, true)
	if err != nil {
		return nil, err
	}

	manifest, ferr := backupfile.Backup(readHandleReader{src}, writeHandleWriter{dst}, backupfile.Options{
		BlockIncremental: true,
		BlockSize:        job.BlockSize,
		ChecksumSize:     6,
		Compress:         backupfile.CompressZstd,
		Chunked:          true,
	})
	if ferr != nil {
		dst.Abandon()
		return nil, ferr
	}
	if err := dst.Commit(p.storage); err != nil {
		return nil, err
	}
	return manifest.IntegrityHash, nil
}

func (p *Pool) runRestore(job workqueue.FileJob, artifactPath string) ([]byte, *errkit.Error) {
	src, err := p.storage.OpenRead(artifactPath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := p.storage.OpenWrite(job.Path, true, true)
	if err != nil {
		return nil, err
	}

	ferr := backupfile.Restore(readHandleReader{src}, writeHandleWriter{dst}, backupfile.RestoreOptions{
		Compress: backupfile.CompressZstd,
		Chunked:  true,
	})
	if ferr != nil {
		dst.Abandon()
		return nil, ferr
	}
	if err := dst.Commit(p.storage); err != nil {
		return nil, err
	}
	return nil, nil
}

func artifactName(sourcePath string) string {
	sum := sha256.Sum256([]byte(sourcePath))
	return fmt.Sprintf("%x", sum)
}

// readHandleReader/writeHandleWriter adapt posix's errkit.Error-returning
// handles to plain io.Reader/io.Writer, which is all backupfile.Backup and
// Restore need. ReadHandle signals end-of-file with a zero-byte, nil-error
// read (posix.go's ReadHandle doc comment); io.Reader implementations are
// expected to report that as io.EOF instead, which is what FilterGroup.Run
// checks for.
type readHandleReader struct{ h *posix.ReadHandle }

func (r readHandleReader) Read(p []byte) (int, error) {
	n, err := r.h.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

type writeHandleWriter struct{ h *posix.WriteHandle }

func (w writeHandleWriter) Write(p []byte) (int, error) {
	n, err := w.h.Write(p)
	if err != nil {
		return n, err
	}
	return n, nil
}
