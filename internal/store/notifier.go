package store

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/vidinsight/api/internal/model"
)

const channelPrefix = "events:"

// Notifier is the Redis pub/sub change-notification bus. Each table
// gets its own channel; subscribers receive every insert/update event
// for the tables they asked for and filter by video id themselves.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a notifier on an existing Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// PublishJobChange emits a change event for the video_jobs table.
func (n *Notifier) PublishJobChange(ctx context.Context, typ model.ChangeType, videoID string, status model.JobStatus, errMsg string) {
	n.publish(ctx, model.ChangeEvent{
		Table:        model.TableVideoJobs,
		Type:         typ,
		VideoID:      videoID,
		Status:       status,
		ErrorMessage: errMsg,
	})
}

// PublishAnalysisChange emits a change event for the video_analyses table.
func (n *Notifier) PublishAnalysisChange(ctx context.Context, typ model.ChangeType, videoID string) {
	n.publish(ctx, model.ChangeEvent{
		Table:   model.TableAnalyses,
		Type:    typ,
		VideoID: videoID,
	})
}

func (n *Notifier) publish(ctx context.Context, ev model.ChangeEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[Notifier] failed to marshal event: %v", err)
		return
	}
	if err := n.rdb.Publish(ctx, channelPrefix+string(ev.Table), data).Err(); err != nil {
		log.Printf("[Notifier] failed to publish %s event for %s: %v", ev.Table, ev.VideoID, err)
	}
}

// Subscribe delivers change events for the given tables until cancel
// is called or ctx ends. The returned channel is closed on teardown.
func (n *Notifier) Subscribe(ctx context.Context, tables ...model.ChangeTable) (<-chan model.ChangeEvent, func()) {
	channels := make([]string, len(tables))
	for i, t := range tables {
		channels[i] = channelPrefix + string(t)
	}

	ps := n.rdb.Subscribe(ctx, channels...)
	out := make(chan model.ChangeEvent, 64)

	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			var ev model.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[Notifier] failed to decode event: %v", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		_ = ps.Close()
	}
	return out, cancel
}
