// Package notify publishes job status transitions to outside listeners.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"

	"genie/internal/model"
	"genie/pkg/log"
)

type Event struct {
	JobId     string          `json:"jobId"`
	Status    model.JobStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	ExitCode  int             `json:"exitCode"`
	ClusterId string          `json:"clusterId,omitempty"`
	CommandId string          `json:"commandId,omitempty"`
	Time      int64           `json:"time"`
}

func EventFromJob(job *model.Job) Event {
	return Event{
		JobId:     job.Id,
		Status:    job.Status,
		Message:   job.StatusMsg,
		ExitCode:  job.ExitCode,
		ClusterId: job.ClusterId,
		CommandId: job.CommandId,
		Time:      time.Now().UnixNano(),
	}
}

// Notifier must not block the caller for long; a failed publish is logged
// and dropped.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
	Close()
}

type Nop struct{}

func (Nop) Notify(context.Context, Event) {}
func (Nop) Close()                        {}

type NSQNotifier struct {
	producer *nsq.Producer
	topic    string
	logger   *logrus.Entry
}

func NewNSQNotifier(ctx context.Context, nsqdAddr, topic string) (*NSQNotifier, error) {
	producer, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create NSQ producer failed: %w", err)
	}
	producer.SetLoggerLevel(nsq.LogLevelWarning)
	return &NSQNotifier{
		producer: producer,
		topic:    topic,
		logger:   log.GetLogger(ctx).WithField("component", "notify"),
	}, nil
}

func (n *NSQNotifier) Notify(ctx context.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.WithError(err).Errorf("marshal event for job %s", ev.JobId)
		return
	}
	if err := n.producer.Publish(n.topic, data); err != nil {
		n.logger.WithError(err).Errorf("publish event for job %s to NSQ failed", ev.JobId)
	}
}

func (n *NSQNotifier) Close() {
	n.producer.Stop()
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Close() {}

func (r *Recorder) Events(jobId string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if jobId == "" || ev.JobId == jobId {
			out = append(out, ev)
		}
	}
	return out
}
