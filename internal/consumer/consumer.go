// Package consumer accepts job submissions from an NSQ topic.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/sirupsen/logrus"

	"genie/internal/config"
	"genie/internal/dao"
	"genie/internal/errs"
	"genie/internal/supervisor"
	"genie/pkg/log"
)

const admissionRetryDelay = 5 * time.Second

type Submitter interface {
	Submit(ctx context.Context, req *supervisor.JobRequest) (string, error)
}

type Consumer struct {
	conf     config.NSQConfig
	jobs     Submitter
	ctx      context.Context
	cancel   context.CancelFunc
	consumer *nsq.Consumer
	wg       sync.WaitGroup
	logger   *logrus.Entry
}

func NewConsumer(ctx context.Context, conf config.NSQConfig, jobs Submitter) (*Consumer, error) {
	ctx, cancel := context.WithCancel(ctx)

	logger := log.GetLogger(ctx).WithField("component", "consumer")

	nsqConf := nsq.NewConfig()
	nsqConf.MsgTimeout = time.Minute
	nsqConf.MaxInFlight = 10
	nsqConf.MaxAttempts = 5

	consumer, err := nsq.NewConsumer(conf.SubmitTopic, conf.Channel, nsqConf)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create NSQ consumer: %w", err)
	}

	c := &Consumer{
		conf:     conf,
		jobs:     jobs,
		ctx:      ctx,
		cancel:   cancel,
		consumer: consumer,
		logger:   logger,
	}

	consumer.AddHandler(c)

	return c, nil
}

// HandleMessage submits the job carried by the message. Malformed or
// rejected submissions are finished; admission refusals are requeued.
func (c *Consumer) HandleMessage(message *nsq.Message) error {
	c.logger.Debugf("Received NSQ message: %s", string(message.Body))
	message.DisableAutoResponse()

	var msg dao.SubmitMessage
	if err := json.Unmarshal(message.Body, &msg); err != nil {
		c.logger.WithError(err).Error("Failed to unmarshal submit message")
		message.Finish()
		return nil
	}

	ctx := c.ctx
	if msg.RequestId != "" {
		ctx = log.WithRequestId(ctx, msg.RequestId)
	}
	logger := log.GetLogger(ctx).WithField("component", "consumer")

	id, err := c.jobs.Submit(ctx, &msg.Job)
	switch {
	case err == nil:
		logger.Infof("job %s submitted from queue", id)
		message.Finish()
	case errors.Is(err, errs.ErrTooManyJobs):
		logger.Warnf("job %s not admitted, requeue in %v", msg.Job.Id, admissionRetryDelay)
		message.Requeue(admissionRetryDelay)
	default:
		logger.WithError(err).Errorf("Failed to submit job %s", msg.Job.Id)
		message.Finish()
	}
	return nil
}

func (c *Consumer) Start() error {
	c.logger.Info("Starting NSQ consumer...")

	addrs := c.conf.NSQDAddrs
	if len(addrs) == 0 {
		addrs = []string{c.conf.NSQDAddr}
	}
	err := c.consumer.ConnectToNSQDs(addrs)
	if err != nil {
		return fmt.Errorf("failed to connect to NSQs: %w", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-c.ctx.Done()
		c.consumer.Stop()
		<-c.consumer.StopChan
	}()

	return nil
}

func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
}
