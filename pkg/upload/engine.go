// Package upload implements the ingestion engine: the simple one-shot
// path and the resumable chunked path, both funneling into the same
// process-dedup-persist pipeline.
package upload

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/rexpump/mediad/internal/logger"
	"github.com/rexpump/mediad/pkg/apperr"
	"github.com/rexpump/mediad/pkg/config"
	"github.com/rexpump/mediad/pkg/image"
	"github.com/rexpump/mediad/pkg/media"
	"github.com/rexpump/mediad/pkg/metrics"
	"github.com/rexpump/mediad/pkg/store/blob"
	"github.com/rexpump/mediad/pkg/store/kv"
)

// Engine runs uploads end to end against the stores.
type Engine struct {
	kv        *kv.Store
	blobs     *blob.Store
	processor *image.Processor
	cfg       *config.Config

	// ingests of identical bytes collapse onto one pipeline run
	dedup singleflight.Group
}

// NewEngine wires the engine to its collaborators.
func NewEngine(kvStore *kv.Store, blobs *blob.Store, processor *image.Processor, cfg *config.Config) *Engine {
	return &Engine{
		kv:        kvStore,
		blobs:     blobs,
		processor: processor,
		cfg:       cfg,
	}
}

// Ingest runs the shared pipeline over raw bytes: hash, dedup, process,
// persist. Byte-identical concurrent uploads collapse to a single stored
// record.
func (e *Engine) Ingest(filename string, data []byte) (*media.Media, error) {
	if len(data) == 0 {
		return nil, apperr.E(apperr.KindValidation, "empty file")
	}

	hash := image.Hash(data)

	v, err, _ := e.dedup.Do(hash, func() (any, error) {
		return e.ingestLocked(filename, data, hash)
	})
	if err != nil {
		return nil, err
	}
	return v.(*media.Media), nil
}

// ingestLocked is the singleflight-protected body of Ingest.
func (e *Engine) ingestLocked(filename string, data []byte, hash string) (*media.Media, error) {
	if existing, err := e.kv.FindByHash(hash); err != nil {
		return nil, err
	} else if existing != nil {
		logger.Info("dedup hit", "existing_id", existing.ID, "hash", hash)
		metrics.UploadsTotal.WithLabelValues("simple", "dedup").Inc()
		return existing, nil
	}

	start := time.Now()
	processed, err := e.processor.Process(data, e.cfg.Upload)
	if err != nil {
		return nil, err
	}
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())

	m := media.New(
		filename,
		processed.OriginalMime,
		e.cfg.Processing.OutputMimeType(),
		uint64(len(processed.OriginalData)),
		uint64(len(processed.OptimizedData)),
		processed.Width,
		processed.Height,
		hash,
	)

	if err := e.blobs.SaveOptimized(m.ID, m.OptimizedExtension(), processed.OptimizedData); err != nil {
		return nil, err
	}
	if e.cfg.Processing.KeepOriginals {
		if err := e.blobs.SaveOriginal(m.ID, m.OriginalExtension(), processed.OriginalData); err != nil {
			e.removeBlobs(m)
			return nil, err
		}
	}

	existing, inserted, err := e.kv.InsertMediaUnlessHashExists(m)
	if err != nil {
		e.removeBlobs(m)
		return nil, err
	}
	if !inserted {
		// Another writer beat us between FindByHash and the insert.
		e.removeBlobs(m)
		return existing, nil
	}

	logger.Info("stored media",
		"id", m.ID,
		"original_size", m.OriginalSize,
		"optimized_size", m.OptimizedSize,
		"width", m.Width,
		"height", m.Height,
	)
	return m, nil
}

// removeBlobs deletes both renditions best-effort after a failed or lost
// insert.
func (e *Engine) removeBlobs(m *media.Media) {
	if err := e.blobs.DeleteOptimized(m.ID, m.OptimizedExtension()); err != nil {
		logger.Warn("cleaning up optimized blob", "id", m.ID, "error", err)
	}
	if e.cfg.Processing.KeepOriginals {
		if err := e.blobs.DeleteOriginal(m.ID, m.OriginalExtension()); err != nil {
			logger.Warn("cleaning up original blob", "id", m.ID, "error", err)
		}
	}
}

// IngestSimple is the one-shot upload path: enforce the simple size cap,
// then run the shared pipeline.
func (e *Engine) IngestSimple(filename string, data []byte) (*media.Media, error) {
	if uint64(len(data)) > e.cfg.Upload.MaxSimpleUploadSize.Uint64() {
		metrics.UploadsTotal.WithLabelValues("simple", "error").Inc()
		return nil, apperr.Ef(apperr.KindPayloadTooLarge,
			"file size %d exceeds maximum allowed size %d", len(data), e.cfg.Upload.MaxSimpleUploadSize)
	}
	m, err := e.Ingest(filename, data)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("simple", "error").Inc()
		return nil, err
	}
	metrics.UploadsTotal.WithLabelValues("simple", "ok").Inc()
	return m, nil
}

// DeleteMedia removes the record, its hash index entry, and both on-disk
// files. File deletion is best-effort; the KV pair is the atomic unit.
func (e *Engine) DeleteMedia(id uuid.UUID) error {
	m, err := e.kv.GetMedia(id)
	if err != nil {
		return err
	}
	if err := e.kv.DeleteMedia(id); err != nil {
		return err
	}
	e.removeBlobs(m)
	logger.Info("deleted media", "id", id)
	return nil
}

// InitSession starts a resumable upload after validating the declared
// size and MIME. Video MIMEs pass when declared allowed, but completion
// will fail in the image pipeline; there is no video pipeline.
func (e *Engine) InitSession(req media.InitUploadRequest) (*media.UploadSession, error) {
	if req.TotalSize == 0 {
		return nil, apperr.E(apperr.KindValidation, "total_size must be greater than 0")
	}
	if req.TotalSize > e.cfg.Upload.MaxChunkedUploadSize.Uint64() {
		return nil, apperr.Ef(apperr.KindPayloadTooLarge,
			"file size %d exceeds maximum allowed size %d", req.TotalSize, e.cfg.Upload.MaxChunkedUploadSize)
	}
	if !e.cfg.Upload.IsAllowedType(req.MimeType) {
		return nil, apperr.Ef(apperr.KindUnsupportedMediaType, "MIME type %s is not allowed", req.MimeType)
	}

	sess := media.NewSession(
		req.Filename,
		req.MimeType,
		req.TotalSize,
		e.cfg.Upload.ChunkSize.Uint64(),
		time.Duration(e.cfg.Upload.UploadSessionTimeoutSeconds)*time.Second,
	)

	if err := e.blobs.CreateTempSessionDir(sess.ID); err != nil {
		return nil, err
	}
	if err := e.kv.InsertSession(sess); err != nil {
		return nil, err
	}

	logger.Info("created upload session", "session_id", sess.ID, "total_size", req.TotalSize)
	return sess, nil
}

// AppendChunk appends body bytes at the declared offset. A nil start
// means "append at the current offset". An offset mismatch is not an
// error: the authoritative session is returned unchanged so the client
// can resume from next_offset.
func (e *Engine) AppendChunk(sid uuid.UUID, body []byte, start *uint64) (*media.UploadSession, error) {
	sess, err := e.kv.GetSession(sid)
	if err != nil {
		return nil, err
	}

	if !sess.Status.CanAcceptChunks() {
		return nil, apperr.Ef(apperr.KindUploadSession,
			"session %s is not accepting chunks (status: %s)", sid, sess.Status)
	}

	if sess.IsExpired() {
		sess.MarkExpired()
		if err := e.kv.UpdateSession(sess); err != nil {
			logger.Warn("persisting expired session", "session_id", sid, "error", err)
		}
		return nil, apperr.E(apperr.KindUploadSession, "upload session has expired")
	}

	offset := sess.ReceivedBytes
	if start != nil {
		offset = *start
	}
	if offset != sess.ReceivedBytes {
		logger.Warn("chunk offset mismatch",
			"session_id", sid, "expected", sess.ReceivedBytes, "got", offset)
		return sess, nil
	}

	if sess.ReceivedBytes+uint64(len(body)) > sess.TotalSize {
		return nil, apperr.Ef(apperr.KindUploadSession,
			"chunk overruns declared total_size %d", sess.TotalSize)
	}

	if err := e.blobs.AppendTemp(sid, body); err != nil {
		return nil, err
	}

	sess.AddReceivedBytes(uint64(len(body)))
	if err := e.kv.UpdateSession(sess); err != nil {
		return nil, err
	}

	metrics.ChunkBytesReceived.Add(float64(len(body)))
	logger.Debug("chunk received",
		"session_id", sid,
		"received", sess.ReceivedBytes,
		"total", sess.TotalSize,
	)
	return sess, nil
}

// Complete finalizes a session: all bytes must be present, then the
// assembled file runs the shared pipeline. On success the temp directory
// is removed; on failure it is kept for the expiry sweep.
func (e *Engine) Complete(sid uuid.UUID) (*media.UploadSession, *media.Media, error) {
	sess, err := e.kv.GetSession(sid)
	if err != nil {
		return nil, nil, err
	}

	if sess.Status.Terminal() || sess.Status == media.SessionProcessing {
		return nil, nil, apperr.Ef(apperr.KindUploadSession,
			"session %s cannot be completed (status: %s)", sid, sess.Status)
	}
	if !sess.IsComplete() {
		return nil, nil, apperr.Ef(apperr.KindUploadSession,
			"upload incomplete: received %d of %d bytes", sess.ReceivedBytes, sess.TotalSize)
	}

	sess.MarkProcessing()
	if err := e.kv.UpdateSession(sess); err != nil {
		return nil, nil, err
	}

	data, err := e.blobs.ReadTemp(sid)
	if err != nil {
		sess.MarkFailed(err.Error())
		if uerr := e.kv.UpdateSession(sess); uerr != nil {
			logger.Warn("persisting failed session", "session_id", sid, "error", uerr)
		}
		metrics.UploadsTotal.WithLabelValues("chunked", "error").Inc()
		return nil, nil, err
	}

	m, err := e.Ingest(sess.Filename, data)
	if err != nil {
		sess.MarkFailed(err.Error())
		if uerr := e.kv.UpdateSession(sess); uerr != nil {
			logger.Warn("persisting failed session", "session_id", sid, "error", uerr)
		}
		metrics.UploadsTotal.WithLabelValues("chunked", "error").Inc()
		return nil, nil, err
	}

	sess.MarkCompleted(m.ID)
	if err := e.kv.UpdateSession(sess); err != nil {
		return nil, nil, err
	}

	if err := e.blobs.DeleteTempSession(sid); err != nil {
		logger.Warn("cleaning up temp session", "session_id", sid, "error", err)
	}

	metrics.UploadsTotal.WithLabelValues("chunked", "ok").Inc()
	logger.Info("completed chunked upload", "session_id", sid, "media_id", m.ID)
	return sess, m, nil
}

// Status returns the current session record.
func (e *Engine) Status(sid uuid.UUID) (*media.UploadSession, error) {
	return e.kv.GetSession(sid)
}

// Cancel moves an in-progress session to cancelled and removes its temp
// data. Cancelling a terminal session is an error.
func (e *Engine) Cancel(sid uuid.UUID) (*media.UploadSession, error) {
	sess, err := e.kv.GetSession(sid)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, apperr.Ef(apperr.KindUploadSession,
			"session %s is already %s", sid, sess.Status)
	}

	sess.MarkCancelled()
	if err := e.kv.UpdateSession(sess); err != nil {
		return nil, err
	}
	if err := e.blobs.DeleteTempSession(sid); err != nil {
		logger.Warn("cleaning up cancelled session", "session_id", sid, "error", err)
	}

	logger.Info("cancelled upload session", "session_id", sid)
	return sess, nil
}

// SweepResult reports what one expiry sweep removed.
type SweepResult struct {
	SessionsCleaned     int `json:"sessions_cleaned"`
	FilesCleaned        int `json:"files_cleaned"`
	OrphanedDirsCleaned int `json:"orphaned_dirs_cleaned"`
}

// Sweep removes expired sessions and their temp directories, then reaps
// orphaned temp directories older than the session timeout (left by
// crashes the KV index never saw).
func (e *Engine) Sweep() (SweepResult, error) {
	metrics.SweepRuns.Inc()

	var result SweepResult
	expired, err := e.kv.CleanupExpiredSessions()
	if err != nil {
		return result, err
	}
	result.SessionsCleaned = len(expired)
	metrics.SweepSessionsCleaned.Add(float64(len(expired)))

	for _, sid := range expired {
		if err := e.blobs.DeleteTempSession(sid); err != nil {
			logger.Warn("removing temp data of expired session", "session_id", sid, "error", err)
			continue
		}
		result.FilesCleaned++
	}

	timeout := time.Duration(e.cfg.Upload.UploadSessionTimeoutSeconds) * time.Second
	orphans, err := e.blobs.CleanupExpiredTemp(timeout)
	if err != nil {
		logger.Warn("sweeping orphaned temp directories", "error", err)
	}
	result.OrphanedDirsCleaned = orphans

	if result.SessionsCleaned > 0 || result.OrphanedDirsCleaned > 0 {
		logger.Info("expiry sweep finished",
			"sessions_cleaned", result.SessionsCleaned,
			"orphaned_dirs_cleaned", result.OrphanedDirsCleaned,
		)
	}
	return result, nil
}
