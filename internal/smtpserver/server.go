package smtpserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.io/infrasutra/inboxsweep/internal/mailfmt"
	"github.io/infrasutra/inboxsweep/internal/sse"
	"github.io/infrasutra/inboxsweep/internal/store"
)

const (
	defaultDomain = "inboxsweep"
	storeTimeout  = 5 * time.Second
)

type InboxStore interface {
	InsertInboxMessage(ctx context.Context, message store.InboxMessage) error
}

type Publisher interface {
	Publish(event string, data any) error
}

// InboxEvent is published for every message accepted into the intake inbox.
type InboxEvent struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Subject   string `json:"subject"`
	CreatedAt string `json:"createdAt"`
}

type Server struct {
	smtp   *smtp.Server
	logger *slog.Logger
}

// New returns an intake server. Any sender and recipient is accepted; each
// message is rendered into section text and stored in the inbox.
func New(inbox InboxStore, events Publisher, logger *slog.Logger, addr string) *Server {
	backend := &backend{
		inbox:  inbox,
		events: events,
		logger: logger,
		now:    time.Now,
	}
	server := smtp.NewServer(backend)
	server.Addr = addr
	server.Domain = defaultDomain
	server.ReadTimeout = 15 * time.Second
	server.WriteTimeout = 15 * time.Second
	server.MaxRecipients = 100
	server.MaxMessageBytes = 25 << 20

	return &Server{smtp: server, logger: logger}
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("smtp server listening", "addr", s.smtp.Addr)
	return s.smtp.ListenAndServe()
}

func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("smtp server listening", "addr", l.Addr().String())
	return s.smtp.Serve(l)
}

func (s *Server) Close() error {
	return s.smtp.Close()
}

type backend struct {
	inbox  InboxStore
	events Publisher
	logger *slog.Logger
	now    func() time.Time
}

func (b *backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend *backend
	from    string
	to      []string
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.from = normalizeEmail(from)
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, normalizeEmail(to))
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	message := buildInboxMessage(s.from, data, s.backend.now())
	if message.Section == "" {
		s.backend.logger.Warn("smtp message has no sender", "envelope_from", s.from)
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.backend.inbox.InsertInboxMessage(ctx, message); err != nil {
		s.backend.logger.Error("store smtp message", "error", err)
		return err
	}
	s.backend.logger.Debug("smtp message stored", "id", message.ID, "from", message.From, "recipients", len(s.to))

	if s.backend.events != nil {
		if err := s.backend.events.Publish(sse.EventInbox, InboxEvent{
			ID:        message.ID,
			From:      message.From,
			Subject:   message.Subject,
			CreatedAt: message.CreatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			s.backend.logger.Warn("publish inbox event", "error", err)
		}
	}
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}

// buildInboxMessage renders raw into an inbox entry. The envelope sender
// stands in when the From header is missing or unparsable.
func buildInboxMessage(envelopeFrom string, raw []byte, now time.Time) store.InboxMessage {
	parsed, err := mailfmt.Parse(raw)
	if err != nil && parsed.Address == "" && parsed.Subject == "" {
		parsed = mailfmt.Message{}
	}
	if parsed.Address == "" || !strings.Contains(parsed.Address, "@") {
		if envelopeFrom != "" {
			parsed.Address = envelopeFrom
		}
	}

	section := ""
	if parsed.Address != "" {
		section = parsed.Section()
	}
	return store.InboxMessage{
		ID:        uuid.NewString(),
		From:      parsed.Address,
		Subject:   parsed.Subject,
		Section:   section,
		Raw:       raw,
		RawSize:   int64(len(raw)),
		CreatedAt: now,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
