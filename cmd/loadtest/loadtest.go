// Command loadtest joins a number of websocket clients to the room and has
// each of them send messages, then reports how many broadcasts came back.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/livechat/internal/model"
)

type stats struct {
	sent     atomic.Int64
	received atomic.Int64
	errors   atomic.Int64
}

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "websocket endpoint")
	clients := flag.Int("clients", 10, "number of concurrent connections")
	messages := flag.Int("messages", 10, "messages sent by each connection")
	interval := flag.Duration("interval", 100*time.Millisecond, "pause between messages")
	settle := flag.Duration("settle", 2*time.Second, "time to wait for broadcasts after the last send")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		st     stats
		joined sync.WaitGroup
		done   = make(chan struct{})
	)
	joined.Add(*clients)

	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()
	for i := range *clients {
		username := fmt.Sprintf("load %d %s", i, uuid.NewString()[:8])
		g.Go(func() error {
			return runClient(ctx, *url, username, *messages, *interval, &joined, done, &st)
		})
	}

	go func() {
		joined.Wait()
		log.Info("all clients joined", "clients", *clients, "elapsed", time.Since(start))
	}()

	// Every client sends, then everyone waits for the tail of the broadcasts.
	go func() {
		time.Sleep(time.Duration(*messages)*(*interval) + *settle)
		close(done)
	}()

	if err := g.Wait(); err != nil {
		log.Error("load test failed", "error", err)
		os.Exit(1)
	}

	expected := st.sent.Load() * int64(*clients)
	log.Info("load test finished",
		"elapsed", time.Since(start),
		"sent", st.sent.Load(),
		"received", st.received.Load(),
		"expected", expected,
		"errors", st.errors.Load())
}

func runClient(ctx context.Context, url, username string, messages int, interval time.Duration,
	joined *sync.WaitGroup, done <-chan struct{}, st *stats,
) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		joined.Done()
		return fmt.Errorf("%s: failed to dial: %w", username, err)
	}
	defer conn.CloseNow()

	if err := write(ctx, conn, model.JoinRequest{Username: username}); err != nil {
		joined.Done()
		return err
	}

	readCtx, stopRead := context.WithCancel(ctx)
	defer stopRead()

	confirmed := make(chan struct{})
	go func() {
		defer close(confirmed)
		var once sync.Once
		for {
			_, p, err := conn.Read(readCtx)
			if err != nil {
				once.Do(joined.Done)
				return
			}

			var env model.Envelope
			if err := json.Unmarshal(p, &env); err != nil {
				st.errors.Add(1)
				continue
			}
			switch env.Event {
			case model.EventJoinConfirmed:
				once.Do(joined.Done)
			case model.EventMessageReceived:
				st.received.Add(1)
			case model.EventError:
				st.errors.Add(1)
			}
		}
	}()

	for i := range messages {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		err := write(ctx, conn, model.SendRequest{
			Username: username,
			Content:  fmt.Sprintf("message %d from %s", i, username),
		})
		if err != nil {
			return err
		}
		st.sent.Add(1)
	}

	<-done
	conn.Close(websocket.StatusNormalClosure, "load test finished")
	stopRead()
	<-confirmed
	return nil
}

func write(ctx context.Context, conn *websocket.Conn, req model.Request) error {
	p, err := model.EncodeRequest(req)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, p); err != nil {
		return fmt.Errorf("failed to send %s: %w", req.RequestName(), err)
	}
	return nil
}
