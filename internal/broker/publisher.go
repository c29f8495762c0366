// Package broker mirrors persisted chat messages to NATS JetStream.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/johndosdos/livechat/internal/model"
)

// Credentials selects how to authenticate with the NATS server. CredsFile
// takes precedence over User/Password.
type Credentials struct {
	CredsFile string
	User      string
	Password  string
}

// Connect dials NATS and makes sure the message stream exists.
func Connect(ctx context.Context, url string, creds Credentials) (*nats.Conn, jetstream.JetStream, error) {
	var opts []nats.Option
	if creds.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(creds.CredsFile))
	} else if creds.User != "" && creds.Password != "" {
		opts = append(opts, nats.UserInfo(creds.User, creds.Password))
	}
	opts = append(opts, nats.Timeout(5*time.Second))

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create jetstream instance: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectGlobalRoom},
		MaxBytes: 1 << 30, // 1GB max storage
	})
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return conn, js, nil
}

// Publisher publishes each persisted message once to SubjectGlobalRoom.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

func (p *Publisher) Publish(ctx context.Context, msg model.Message) error {
	if p.js == nil {
		return errors.New("jetstream interface is nil")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("could not encode payload to JSON: %w", err)
	}

	// The message id doubles as the JetStream dedup id.
	_, err = p.js.Publish(ctx, SubjectGlobalRoom, data, jetstream.WithMsgID(msg.ID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish to stream [%s]: %w", SubjectGlobalRoom, err)
	}
	return nil
}
