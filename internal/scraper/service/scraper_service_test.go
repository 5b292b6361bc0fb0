package service

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/by-justin/cctvdownloader/internal/common/config"
	"github.com/by-justin/cctvdownloader/internal/resolver"
	"github.com/by-justin/cctvdownloader/pkg/models"
	"github.com/sirupsen/logrus"
)

// blockingResolver hands its context to the test and then waits for
// cancellation, standing in for a long-running listing.
type blockingResolver struct {
	started chan context.Context
}

func (r *blockingResolver) ListEpisodes(ctx context.Context, channelURL string, pageLimit int) ([]models.Episode, error) {
	r.started <- ctx
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *blockingResolver) ResolveAll(ctx context.Context, episodes []models.Episode, workers int) ([]models.Episode, []resolver.ResolveFailure) {
	return episodes, nil
}

type fakeMessaging struct {
	cfg *config.RabbitMQConfig
}

func (m *fakeMessaging) PublishMessage(exchange, routingKey string, body []byte) error { return nil }
func (m *fakeMessaging) PublishJSON(exchange, routingKey string, data interface{}) error {
	return nil
}
func (m *fakeMessaging) DeclareQueue(name string) error                         { return nil }
func (m *fakeMessaging) BindQueue(queueName, exchange, routingKey string) error { return nil }
func (m *fakeMessaging) Consume(queueName string, handler func(body []byte, routingKey string) error) error {
	return nil
}
func (m *fakeMessaging) GetConfig() *config.RabbitMQConfig { return m.cfg }
func (m *fakeMessaging) Close() error                      { return nil }

func waitForRun(t *testing.T, started chan context.Context) context.Context {
	t.Helper()
	select {
	case ctx := <-started:
		return ctx
	case <-time.After(time.Second):
		t.Fatal("resolution batch never started")
		return nil
	}
}

func TestScraperService_RestartCancelsPreviousRun(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	res := &blockingResolver{started: make(chan context.Context, 2)}
	rabbitCfg := &config.RabbitMQConfig{}
	svc := NewScraperService(&config.ResolverConfig{}, rabbitCfg, log, res, &fakeMessaging{cfg: rabbitCfg})

	start, err := json.Marshal(models.Command{
		Action: models.StartAction,
		Data:   models.CommandData{ChannelURL: "http://site.example/lm/x"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.handleCommand(start); err != nil {
		t.Fatalf("first start command failed: %v", err)
	}
	first := waitForRun(t, res.started)

	if err := svc.handleCommand(start); err != nil {
		t.Fatalf("second start command failed: %v", err)
	}

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("previous batch kept running after a new start command")
	}

	second := waitForRun(t, res.started)

	stop, err := json.Marshal(models.Command{Action: models.StopAction})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.handleCommand(stop); err != nil {
		t.Fatalf("stop command failed: %v", err)
	}

	select {
	case <-second.Done():
	case <-time.After(time.Second):
		t.Fatal("stop command did not cancel the running batch")
	}

	svc.Stop()
}
