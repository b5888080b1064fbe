// Command ws_smoke logs in, posts a message over the websocket and checks that
// it comes back from the history endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/vovakirdan/commhub-server/internal/client"
	"github.com/vovakirdan/commhub-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	user := flag.String("user", "tester", "username")
	password := flag.String("password", "", "password")
	channel := flag.String("channel", "", "channel id to post in")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *channel == "" {
		return fmt.Errorf("-channel is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	api := client.NewHistoryClient(*server, *timeout)
	token, me, err := api.Login(ctx, *user, *password)
	if err != nil {
		return err
	}

	conn, err := client.Dial(ctx, "ws"+strings.TrimPrefix(*server, "http")+"/ws")
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.AddUser(ctx, me.ID, token); err != nil {
		return fmt.Errorf("add user: %w", err)
	}
	if err := waitOnline(ctx, conn, me.ID); err != nil {
		return err
	}
	fmt.Printf("Registered as %s (%s)\n", me.Username, me.ID)

	if err := conn.Send(ctx, proto.InboundTypeJoinChannel, proto.ChannelData{Channel: *channel}); err != nil {
		return fmt.Errorf("join: %w", err)
	}
	msg := proto.SendData{To: *channel, Msg: proto.Payload{Type: "text", Text: *text}, Type: proto.ConversationChannel}
	if err := conn.Send(ctx, proto.InboundTypeSendChannelMsg, msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	conv := client.Conversation{Kind: proto.ConversationChannel, To: *channel}
	for {
		page, err := api.History(ctx, conv, 10, "")
		if err != nil {
			return err
		}
		for _, m := range page.Messages {
			if m.From == me.ID && m.Msg.Text == *text {
				fmt.Printf("Message persisted: id=%s at=%s\n", m.ID, m.CreatedAt.Format(time.RFC3339))
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("message not found in history: %w", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func waitOnline(ctx context.Context, conn *client.Conn, id string) error {
	for {
		out, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if out.Type == proto.OutboundTypeError && out.Error != nil {
			return out.Error
		}
		if out.Event == proto.EventOnlineUsers && strings.Contains(string(out.Data), `"`+id+`"`) {
			return nil
		}
	}
}
