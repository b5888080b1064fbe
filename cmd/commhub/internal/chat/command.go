// Package chat is a line-based terminal client for the chat server.
package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/commhub-server/internal/client"
	"github.com/vovakirdan/commhub-server/internal/log"
	"github.com/vovakirdan/commhub-server/internal/proto"
	"github.com/vovakirdan/commhub-server/internal/typing"
)

type options struct {
	server   string
	user     string
	password string
	to       string
	channel  string
	limit    int
	typing   time.Duration
	logLevel string
}

func NewChatCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat from the terminal",
		Args:  cobra.NoArgs,
		Example: `  commhub chat --user alice --password secret --to <user id>
  commhub chat --user alice --password secret --channel <channel id>`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger := log.NewWithWriter(opts.logLevel, os.Stderr)
			return run(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "username")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "password")
	cmd.Flags().StringVar(&opts.to, "to", "", "user id to chat with")
	cmd.Flags().StringVar(&opts.channel, "channel", "", "channel id to chat in")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "history page size")
	cmd.Flags().DurationVar(&opts.typing, "typing-timeout", typing.DefaultTimeout, "idle time before stop-typing is sent")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("password")
	cmd.MarkFlagsMutuallyExclusive("to", "channel")
	return cmd
}

// session ties the connection, the timeline and typing state together.
type session struct {
	conn      *client.Conn
	timeline  *client.Timeline
	debouncer *typing.Debouncer
	indicator *typing.Indicator
	self      string
	out       io.Writer
	log       *zerolog.Logger

	typingq chan typingSignal
	done    <-chan struct{}
}

type typingSignal struct {
	typ  string
	data proto.TypingData
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer, logger *zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	api := client.NewHistoryClient(opts.server, 10*time.Second)
	token, me, err := api.Login(ctx, opts.user, opts.password)
	if err != nil {
		return err
	}

	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(opts.server, "/"), "http") + "/ws"
	conn, err := client.Dial(ctx, wsURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.AddUser(ctx, me.ID, token); err != nil {
		return fmt.Errorf("add user: %w", err)
	}

	s := &session{
		conn:      conn,
		timeline:  client.NewTimeline(me.ID, api, opts.limit),
		indicator: typing.NewIndicator(),
		self:      me.ID,
		out:       out,
		log:       logger,
	}
	s.startTyping(ctx, typing.WithTimeout(opts.typing))
	defer s.debouncer.Close()

	fmt.Fprintf(out, "Connected to %s as %s (%s)\n", opts.server, me.Username, me.ID)
	fmt.Fprintln(out, "Commands: /dm <id>, /channel <id>, /more, /delete <id>, /typing, /quit")

	switch {
	case opts.channel != "":
		s.switchTo(ctx, client.Conversation{Kind: proto.ConversationChannel, To: opts.channel})
	case opts.to != "":
		s.switchTo(ctx, client.Conversation{Kind: proto.ConversationDM, To: opts.to})
	}

	go func() {
		defer cancel()
		s.readLoop(ctx)
	}()

	s.inputLoop(ctx, in)
	return nil
}

// startTyping creates the debouncer and the single writer that puts its
// signals on the wire in emission order. The writer stops with ctx.
func (s *session) startTyping(ctx context.Context, opts ...typing.Option) {
	s.typingq = make(chan typingSignal, 16)
	s.done = ctx.Done()
	s.debouncer = typing.NewDebouncer(s.sendTyping, opts...)
	go s.typingWriter(ctx)
}

// sendTyping is the debouncer's emit function. It only queues the signal since
// it runs under the debouncer lock.
func (s *session) sendTyping(target typing.Target, active bool) {
	typ := proto.InboundTypeStopTyping
	if active {
		typ = proto.InboundTypeTyping
	}
	sig := typingSignal{typ: typ, data: proto.TypingData{To: target.To, From: s.self, Type: target.Kind}}
	select {
	case s.typingq <- sig:
	case <-s.done:
	}
}

func (s *session) typingWriter(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-s.typingq:
			sendCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := s.conn.Send(sendCtx, sig.typ, sig.data); err != nil {
				s.log.Debug().Err(err).Str("type", sig.typ).Msg("typing signal not sent")
			}
			cancel()
		}
	}
}

func (s *session) switchTo(ctx context.Context, conv client.Conversation) {
	if prev := s.timeline.Conversation(); prev.To != "" {
		s.debouncer.Stop(typing.Target{To: prev.To, Kind: prev.Kind})
	}
	s.indicator.Reset()

	if conv.Kind == proto.ConversationChannel {
		if err := s.conn.Send(ctx, proto.InboundTypeJoinChannel, proto.ChannelData{Channel: conv.To}); err != nil {
			s.log.Warn().Err(err).Msg("join channel failed")
		}
	}
	if err := s.timeline.Select(ctx, conv); err != nil && !errors.Is(err, client.ErrSuperseded) {
		fmt.Fprintf(s.out, "! history: %v\n", err)
	}
	fmt.Fprintf(s.out, "--- %s %s ---\n", conv.Kind, conv.To)
	for _, m := range s.timeline.Messages() {
		s.print(m)
	}
	if s.timeline.HasMore() {
		fmt.Fprintln(s.out, "(older messages available: /more)")
	}
}

func (s *session) readLoop(ctx context.Context) {
	for {
		frame, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && !client.Closed(err) {
				s.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		s.handle(frame)
	}
}

func (s *session) handle(frame proto.RawOutbound) {
	if frame.Type == proto.OutboundTypeError && frame.Error != nil {
		fmt.Fprintf(s.out, "! %s: %s\n", frame.Error.Code, frame.Error.Msg)
		return
	}

	switch frame.Event {
	case proto.EventMsgReceive, proto.EventChannelMsgReceive:
		var m proto.MessageData
		if err := json.Unmarshal(frame.Data, &m); err != nil {
			s.log.Debug().Err(err).Msg("bad message event")
			return
		}
		if s.timeline.Live(m) {
			s.print(m)
		} else {
			fmt.Fprintf(s.out, "(new %s message from %s)\n", m.Type, displayName(m))
		}
	case proto.EventMsgDeleted:
		var id string
		if err := json.Unmarshal(frame.Data, &id); err == nil && s.timeline.Deleted(id) {
			fmt.Fprintf(s.out, "(message %s deleted)\n", id)
		}
	case proto.EventDisplayTyping, proto.EventHideTyping:
		var t proto.TypingData
		if err := json.Unmarshal(frame.Data, &t); err != nil {
			return
		}
		if frame.Event == proto.EventHideTyping {
			s.indicator.Hide(t.From)
			return
		}
		s.indicator.Show(typing.Peer{From: t.From, Name: t.SenderName, To: t.To, Kind: t.Type})
		conv := s.timeline.Conversation()
		for _, p := range s.indicator.In(conv.Kind, conv.To, s.self) {
			if p.From == t.From {
				name := p.Name
				if name == "" {
					name = p.From
				}
				fmt.Fprintf(s.out, "(%s is typing...)\n", name)
			}
		}
	case proto.EventOnlineUsers:
		var online []string
		if err := json.Unmarshal(frame.Data, &online); err == nil {
			s.log.Debug().Strs("online", online).Msg("presence updated")
		}
	}
}

func (s *session) inputLoop(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !s.command(ctx, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// command handles one input line and reports whether to keep going.
func (s *session) command(ctx context.Context, line string) bool {
	conv := s.timeline.Conversation()
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "":
		return true
	case "/quit":
		return false
	case "/dm":
		s.switchTo(ctx, client.Conversation{Kind: proto.ConversationDM, To: arg})
	case "/channel":
		s.switchTo(ctx, client.Conversation{Kind: proto.ConversationChannel, To: arg})
	case "/more":
		n, err := s.timeline.LoadOlder(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "! history: %v\n", err)
			break
		}
		for _, m := range s.timeline.Messages()[:n] {
			s.print(m)
		}
	case "/delete":
		if err := s.conn.Send(ctx, proto.InboundTypeMsgDelete, proto.DeleteData{ID: arg, To: conv.To, Type: conv.Kind}); err != nil {
			fmt.Fprintf(s.out, "! delete: %v\n", err)
		}
	case "/typing":
		if conv.To != "" {
			s.debouncer.Keystroke(typing.Target{To: conv.To, Kind: conv.Kind})
		}
	default:
		if conv.To == "" {
			fmt.Fprintln(s.out, "! pick a conversation first: /dm <id> or /channel <id>")
			break
		}
		s.debouncer.Stop(typing.Target{To: conv.To, Kind: conv.Kind})
		typ := proto.InboundTypeSendMsg
		if conv.Kind == proto.ConversationChannel {
			typ = proto.InboundTypeSendChannelMsg
		}
		data := proto.SendData{To: conv.To, From: s.self, Msg: proto.Payload{Type: "text", Text: line}, Type: conv.Kind}
		if err := s.conn.Send(ctx, typ, data); err != nil {
			fmt.Fprintf(s.out, "! send: %v\n", err)
			return false
		}
		// The server does not echo our own messages back.
		fmt.Fprintf(s.out, "you: %s\n", line)
	}
	return true
}

func (s *session) print(m proto.MessageData) {
	body := m.Msg.Text
	if m.Msg.Type != "text" {
		body = fmt.Sprintf("[%s] %s", m.Msg.Type, m.Msg.FileURL+m.Msg.AudioURL)
	}
	fmt.Fprintf(s.out, "%s %s: %s  (%s)\n", m.CreatedAt.Local().Format("15:04"), displayName(m), body, m.ID)
}

func displayName(m proto.MessageData) string {
	if m.SenderName != "" {
		return m.SenderName
	}
	return m.From
}
