package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// PubSubMessage is the envelope published to the FIR notification topic.
// Consumers (dashboards, audit pipelines) key on EventType.
type PubSubMessage struct {
	FirId         int    `json:"firId"`
	FirNumber     string `json:"firNumber"`
	EventType     string `json:"eventType"`
	Message       string `json:"message"`
	Payload       string `json:"payload,omitempty"`
	CorrelationId string `json:"correlationId,omitempty"`
}

var (
	pubsubClient     *pubsub.Client
	pubsubClientOnce sync.Once
	pubsubClientErr  error
)

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientOnce.Do(func() {
		projectID := os.Getenv("PUBSUB_PROJECT_ID")
		if projectID == "" {
			pubsubClientErr = errors.New("PUBSUB_PROJECT_ID not set")
			return
		}

		var opts []option.ClientOption
		if creds := os.Getenv("PUBSUB_CREDENTIALS_JSON"); creds != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
		}

		var client *pubsub.Client
		var err error
		for attempt := 1; attempt <= 3; attempt++ {
			client, err = pubsub.NewClient(ctx, projectID, opts...)
			if err == nil {
				break
			}
			log.Printf("pubsub client init failed (attempt=%d): %v", attempt, err)
			time.Sleep(time.Second * time.Duration(attempt))
		}
		if err != nil {
			pubsubClientErr = err
			return
		}
		pubsubClient = client
	})
	return pubsubClient, pubsubClientErr
}

// PublishFIRNotificationWithResult publishes synchronously and returns the
// server-assigned message ID. The outbox dispatcher relies on the error to
// decide retry vs mark-sent, so this must not swallow failures.
func PublishFIRNotificationWithResult(ctx context.Context, msg PubSubMessage) (string, error) {
	topicName := os.Getenv("PUBSUB_TOPIC")
	if topicName == "" {
		return "", errors.New("PUBSUB_TOPIC not set")
	}

	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", fmt.Errorf("pubsub client: %w", err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal pubsub message: %w", err)
	}

	topic := client.Topic(topicName)
	result := topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"eventType":     msg.EventType,
			"firNumber":     msg.FirNumber,
			"correlationId": msg.CorrelationId,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish fir notification: %w", err)
	}
	return id, nil
}
