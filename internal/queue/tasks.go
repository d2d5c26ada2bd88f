// Package queue carries the asynchronous follow-up work that must
// eventually succeed even when the first attempt fails: purging chunks
// after a document loses approval and deleting stored objects after a
// document is removed. asynq retries these until they stick.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"document-archive-platform/internal/logger"
	"document-archive-platform/internal/objectstore"
	"document-archive-platform/internal/vectorstore"
)

const (
	TaskPurgeChunks   = "chunks:purge"
	TaskDeleteObjects = "storage:delete"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type PurgeChunksPayload struct {
	DocumentID int64 `json:"document_id"`
}

type DeleteObjectsPayload struct {
	DocumentID int64    `json:"document_id"`
	Keys       []string `json:"keys"`
}

// Task creators
func NewPurgeChunksTask(documentID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(PurgeChunksPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskPurgeChunks,
		payload,
		asynq.MaxRetry(10),
		asynq.Timeout(1*time.Minute),
		asynq.Queue(QueueCritical),
	), nil
}

func NewDeleteObjectsTask(documentID int64, keys []string) (*asynq.Task, error) {
	payload, err := json.Marshal(DeleteObjectsPayload{DocumentID: documentID, Keys: keys})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskDeleteObjects,
		payload,
		asynq.MaxRetry(10),
		asynq.Timeout(2*time.Minute),
		asynq.Queue(QueueLow),
	), nil
}

// Enqueuer is the write side used by request handlers and services.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// PurgeChunks schedules removal of a document's chunks.
func (e *Enqueuer) PurgeChunks(documentID int64) error {
	task, err := NewPurgeChunksTask(documentID)
	if err != nil {
		return err
	}
	info, err := e.client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue chunk purge for document %d: %w", documentID, err)
	}
	logger.Logger.Info("chunk purge scheduled", "document_id", documentID, "task_id", info.ID)
	return nil
}

// DeleteObjects schedules removal of stored artifacts.
func (e *Enqueuer) DeleteObjects(documentID int64, keys []string) error {
	task, err := NewDeleteObjectsTask(documentID, keys)
	if err != nil {
		return err
	}
	info, err := e.client.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue object delete for document %d: %w", documentID, err)
	}
	logger.Logger.Info("object delete scheduled",
		"document_id", documentID, "keys", len(keys), "task_id", info.ID)
	return nil
}

// Task handlers
type TaskProcessor struct {
	chunks  *vectorstore.Store
	objects *objectstore.Store
}

func NewTaskProcessor(chunks *vectorstore.Store, objects *objectstore.Store) *TaskProcessor {
	return &TaskProcessor{chunks: chunks, objects: objects}
}

// Register wires the handlers into an asynq mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskPurgeChunks, p.HandlePurgeChunks)
	mux.HandleFunc(TaskDeleteObjects, p.HandleDeleteObjects)
}

func (p *TaskProcessor) HandlePurgeChunks(ctx context.Context, t *asynq.Task) error {
	var payload PurgeChunksPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	purged, err := p.chunks.PurgeDocument(ctx, payload.DocumentID)
	if err != nil {
		return err // Will retry
	}
	logger.Logger.Info("purge task done", "document_id", payload.DocumentID, "chunks", purged)
	return nil
}

func (p *TaskProcessor) HandleDeleteObjects(ctx context.Context, t *asynq.Task) error {
	var payload DeleteObjectsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	for _, key := range payload.Keys {
		if err := p.objects.DeleteObject(ctx, key); err != nil {
			return err // Will retry, DeleteObject tolerates already-gone keys
		}
	}
	logger.Logger.Info("object delete task done",
		"document_id", payload.DocumentID, "keys", len(payload.Keys))
	return nil
}
