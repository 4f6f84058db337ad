package mirror

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"classattend/internal/queue"
)

// CheckinMessage is the queue payload published for every accepted check-in.
type CheckinMessage struct {
	StudentID string `json:"student_id"`
	Timestamp int64  `json:"timestamp"`
	Day       string `json:"day"`
}

// MessageType tags check-in messages on the shared queue.
const MessageType = "checkin"

// Publish puts an accepted check-in on the queue without blocking the
// session. A full or unreachable queue drops the message; the day file is
// the store of record either way.
func Publish(ctx context.Context, q queue.Queue, msg CheckinMessage) {
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("mirror: marshal checkin: %v", err)
		return
	}
	if !q.TryPublish(ctx, queue.Message{Type: MessageType, Body: body}) {
		log.Printf("mirror: queue full, dropped checkin for %s", msg.StudentID)
	}
}

// Worker consumes check-in messages and inserts them into Postgres.
// Failures are logged and the message is dropped; the mirror is strictly
// best-effort.
type Worker struct {
	repo *Repository
	q    queue.Queue
}

// NewWorker creates a worker.
func NewWorker(repo *Repository, q queue.Queue) *Worker {
	return &Worker{repo: repo, q: q}
}

// Run consumes until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return err
	}
	log.Println("mirror: worker started")
	for msg := range messages {
		if msg.Type != MessageType {
			continue
		}
		var checkin CheckinMessage
		if err := json.Unmarshal(msg.Body, &checkin); err != nil {
			log.Printf("mirror: bad message: %v", err)
			continue
		}
		if err := w.repo.Insert(ctx, checkin.StudentID, checkin.Day, time.Unix(checkin.Timestamp, 0).UTC()); err != nil {
			log.Printf("mirror: insert %s failed: %v", checkin.StudentID, err)
			continue
		}
		log.Printf("mirror: %s mirrored for %s", checkin.StudentID, checkin.Day)
	}
	log.Println("mirror: worker stopped")
	return nil
}
