package pipeline

import (
	"context"
	"log"

	"github.com/vidinsight/api/internal/model"
)

// Subscriber delivers store change notifications.
type Subscriber interface {
	Subscribe(ctx context.Context, tables ...model.ChangeTable) (<-chan model.ChangeEvent, func())
}

// Dispatcher invokes the orchestrator whenever the store reports a new
// job row — the in-process equivalent of the store's webhook calling
// the trigger endpoint. Delivery is at-least-once; the pipeline's
// idempotency absorbs duplicates.
type Dispatcher struct {
	orch *Orchestrator
	sub  Subscriber
}

func NewDispatcher(orch *Orchestrator, sub Subscriber) *Dispatcher {
	return &Dispatcher{orch: orch, sub: sub}
}

// Start consumes job INSERT events until ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	events, cancel := d.sub.Subscribe(ctx, model.TableVideoJobs)
	defer cancel()

	log.Printf("[Dispatcher] listening for new video jobs")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Table != model.TableVideoJobs || ev.Type != model.ChangeInsert {
				continue
			}
			go func(videoID string) {
				if _, err := d.orch.Run(ctx, videoID); err != nil {
					log.Printf("[Dispatcher] job %s failed: %v", videoID, err)
				}
			}(ev.VideoID)
		}
	}
}
