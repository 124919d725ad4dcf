package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"onboardline/internal/logging"
)

const OrchestrationTopic = "orchestration.jobs"

// OrchestrationJob is an async orchestrate request.
type OrchestrationJob struct {
	CaseID  string `json:"case_id"`
	Notes   string `json:"notes,omitempty"`
	ActorID string `json:"actor_id,omitempty"`
}

// JobQueue carries orchestration jobs over a watermill publisher/subscriber pair.
type JobQueue struct {
	Pub message.Publisher
	Sub message.Subscriber
}

func (q *JobQueue) Enqueue(_ context.Context, job OrchestrationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal orchestration job: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("case_id", job.CaseID)
	return q.Pub.Publish(OrchestrationTopic, msg)
}

// ConsumeOrchestrations starts workers that run queued orchestration jobs
// until ctx is done.
func (e Engine) ConsumeOrchestrations(ctx context.Context, workers int) error {
	if e.Jobs == nil {
		return fmt.Errorf("orchestration queue not configured")
	}
	if workers <= 0 {
		workers = 1
	}
	messages, err := e.Jobs.Sub.Subscribe(ctx, OrchestrationTopic)
	if err != nil {
		return err
	}
	log := e.logger()
	for i := 0; i < workers; i++ {
		go func() {
			for msg := range messages {
				e.handleJob(ctx, log, msg)
			}
		}()
	}
	return nil
}

func (e Engine) handleJob(ctx context.Context, log logging.Logger, msg *message.Message) {
	var job OrchestrationJob
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		log.Error("engine", "drop undecodable orchestration job", map[string]any{"error": err, "message_id": msg.UUID})
		msg.Ack()
		return
	}
	if _, err := e.runOrchestration(ctx, job.CaseID, job.Notes, job.ActorID); err != nil {
		// the failure is already recorded on the case and its feed
		log.Warn("engine", "async orchestration failed", map[string]any{"case_id": job.CaseID, "error": err})
	}
	msg.Ack()
}
