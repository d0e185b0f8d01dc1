// Package worker provides a NATS worker that renders scripts into videos on request.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/video-service/internal/core"
	"github.com/book-expert/video-service/internal/jobs"
	"github.com/book-expert/video-service/internal/script"
	"github.com/book-expert/video-service/internal/timeline"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultJobTimeout bounds one render job from request to reply.
const DefaultJobTimeout = 30 * time.Minute

const (
	logFmtReceived     = "Render job %s (workflow %s) received for script %s"
	logFmtState        = "Render job %s: %s"
	logFmtFinished     = "Render job %s finished: %s (%d clips, %.2fs)"
	logFmtFailed       = "Render job %s failed: %v"
	logFmtLedgerFailed = "Render job %s: failed to update job ledger: %v"
	logFmtReplyFailed  = "Render job %s: failed to publish reply: %v"
	logFmtRemoveFailed = "Render job %s: failed to remove local output %s: %v"
)

var (
	// ErrScriptKeyEmpty indicates a request without a script key.
	ErrScriptKeyEmpty = errors.New("script key cannot be empty")
	// ErrMissingDependency indicates a worker built without a required collaborator.
	ErrMissingDependency = errors.New("worker dependency missing")
)

// Renderer renders a parsed script to a local video file.
type Renderer interface {
	Run(ctx context.Context, s *script.Script, observe timeline.Observer) (*timeline.Result, error)
}

// Ledger records the lifecycle of each job.
type Ledger interface {
	Create(ctx context.Context, job jobs.Job) error
	SetState(ctx context.Context, id, state string) error
	Finish(ctx context.Context, id, outputKey string, clipCount int, duration float64) error
	Fail(ctx context.Context, id, reason string) error
}

// NatsWorker listens for render requests on a NATS subject and replies with the
// uploaded video.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	scripts        core.ObjectStore
	videos         core.ObjectStore
	renderer       Renderer
	ledger         Ledger
	jobTimeout     time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. Scripts are read from
// scripts and finished videos are written to videos.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	scripts core.ObjectStore,
	videos core.ObjectStore,
	renderer Renderer,
	ledger Ledger,
	log *logger.Logger,
) (*NatsWorker, error) {
	if natsConnection == nil || scripts == nil || videos == nil || renderer == nil || ledger == nil {
		return nil, ErrMissingDependency
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		scripts:        scripts,
		videos:         videos,
		renderer:       renderer,
		ledger:         ledger,
		jobTimeout:     DefaultJobTimeout,
		log:            log,
	}, nil
}

// WithJobTimeout overrides DefaultJobTimeout.
func (w *NatsWorker) WithJobTimeout(timeout time.Duration) *NatsWorker {
	if timeout > 0 {
		w.jobTimeout = timeout
	}

	return w
}

// Run starts the worker and blocks until ctx is done. Jobs are handled one at a time.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	jobID := uuid.NewString()
	reply := &VideoRenderedEvent{JobID: jobID}

	event, parseErr := parseEvent(msg)
	if parseErr != nil {
		w.log.Error(logFmtFailed, jobID, parseErr)
		reply.Error = parseErr.Error()
		w.respond(msg, jobID, reply)

		return
	}

	reply.Header = event.Header

	w.log.Info(logFmtReceived, jobID, event.Header.WorkflowID, event.ScriptKey)

	ledgerErr := w.ledger.Create(ctx, jobs.Job{
		ID:         jobID,
		WorkflowID: event.Header.WorkflowID,
		ScriptKey:  event.ScriptKey,
		State:      timeline.StateIdle.String(),
	})
	if ledgerErr != nil {
		w.log.Warn(logFmtLedgerFailed, jobID, ledgerErr)
	}

	result, videoKey, jobErr := w.processRenderJob(ctx, jobID, event)
	if jobErr != nil {
		w.log.Error(logFmtFailed, jobID, jobErr)
		w.recordFailure(jobID, jobErr)
		reply.Error = jobErr.Error()
		w.respond(msg, jobID, reply)

		return
	}

	reply.VideoKey = videoKey
	reply.LineCount = result.Clips
	reply.SkippedLines = result.Skipped
	reply.DurationSeconds = result.Duration

	finishErr := w.ledger.Finish(ctx, jobID, videoKey, result.Clips, result.Duration)
	if finishErr != nil {
		w.log.Warn(logFmtLedgerFailed, jobID, finishErr)
	}

	w.log.Info(logFmtFinished, jobID, videoKey, result.Clips, result.Duration)
	w.respond(msg, jobID, reply)
}

// processRenderJob downloads and parses the script, renders it and uploads the video.
func (w *NatsWorker) processRenderJob(
	ctx context.Context,
	jobID string,
	event *RenderRequestedEvent,
) (*timeline.Result, string, error) {
	scriptData, err := w.scripts.Download(ctx, event.ScriptKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download script for key '%s': %w", event.ScriptKey, err)
	}

	parsed, err := script.Parse(scriptData)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", core.ErrInput, err)
	}

	if event.Language != "" {
		parsed.Language = event.Language
	}

	result, err := w.renderer.Run(ctx, parsed, func(state timeline.State) {
		w.log.Info(logFmtState, jobID, state)

		stateErr := w.ledger.SetState(context.WithoutCancel(ctx), jobID, state.String())
		if stateErr != nil {
			w.log.Warn(logFmtLedgerFailed, jobID, stateErr)
		}
	})
	if err != nil {
		return nil, "", err
	}

	videoKey := event.Header.WorkflowID + "/" + filepath.Base(result.OutputPath)

	err = w.videos.UploadFile(ctx, videoKey, result.OutputPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to upload video for key '%s': %w", videoKey, err)
	}

	removeErr := os.Remove(result.OutputPath)
	if removeErr != nil {
		w.log.Warn(logFmtRemoveFailed, jobID, result.OutputPath, removeErr)
	}

	return result, videoKey, nil
}

func (w *NatsWorker) recordFailure(jobID string, jobErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	failErr := w.ledger.Fail(ctx, jobID, jobErr.Error())
	if failErr != nil {
		w.log.Warn(logFmtLedgerFailed, jobID, failErr)
	}
}

// respond marshals and publishes the reply. Requests published without a reply
// subject get none.
func (w *NatsWorker) respond(msg *nats.Msg, jobID string, reply *VideoRenderedEvent) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error(logFmtReplyFailed, jobID, err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error(logFmtReplyFailed, jobID, err)
	}
}

func parseEvent(msg *nats.Msg) (*RenderRequestedEvent, error) {
	var event RenderRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal event: %w", core.ErrInput, err)
	}

	if event.ScriptKey == "" {
		return nil, fmt.Errorf("%w: %w", core.ErrInput, ErrScriptKeyEmpty)
	}

	if event.Header.WorkflowID == "" {
		event.Header.WorkflowID = uuid.NewString()
	}

	return &event, nil
}
