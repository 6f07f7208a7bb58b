package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/coldreach/coldreach/internal/config"
	"github.com/coldreach/coldreach/internal/model"
)

// fakeSMTP accepts one session per connection and records what it got.
type fakeSMTP struct {
	ln       net.Listener
	rejectTo bool

	mu   sync.Mutex
	from string
	rcpt []string
	data string
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeSMTP{ln: ln}
	t.Cleanup(func() { ln.Close() }) //nolint:errcheck
	go f.serve()
	return f
}

func (f *fakeSMTP) port() int { return f.ln.Addr().(*net.TCPAddr).Port }

func (f *fakeSMTP) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close() //nolint:errcheck
	r := bufio.NewReader(conn)
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }
	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSpace(line)
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			f.mu.Lock()
			f.from = cmd[len("MAIL FROM:"):]
			f.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			if f.rejectTo {
				reply("550 no such user")
				continue
			}
			f.mu.Lock()
			f.rcpt = append(f.rcpt, cmd[len("RCPT TO:"):])
			f.mu.Unlock()
			reply("250 OK")
		case upper == "DATA":
			reply("354 go ahead")
			var sb strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				sb.WriteString(l)
			}
			f.mu.Lock()
			f.data = sb.String()
			f.mu.Unlock()
			reply("250 queued")
		case upper == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func testMessage() Message {
	return Message{
		SessionID: "s1",
		To:        "lisa@clearcutar.com",
		ToName:    "Lisa Chen",
		Subject:   "Wound imaging at ClearCut",
		Body:      "Lisa, your 3D wound imaging caught my eye.\nWould you be open to a quick chat?",
	}
}

func TestSMTP_Send(t *testing.T) {
	srv := newFakeSMTP(t)
	s := NewSMTP(config.SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "Dev <dev@example.com>"})

	receipt, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(receipt, "<"))
	assert.True(t, strings.HasSuffix(receipt, "@example.com>"))

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Equal(t, "<dev@example.com>", srv.from)
	assert.Equal(t, []string{"<lisa@clearcutar.com>"}, srv.rcpt)
	assert.Contains(t, srv.data, "Subject: Wound imaging at ClearCut\r\n")
	assert.Contains(t, srv.data, `To: "Lisa Chen" <lisa@clearcutar.com>`)
	assert.Contains(t, srv.data, "Message-ID: "+receipt)
	assert.Contains(t, srv.data, "caught my eye.\r\nWould you")
}

func TestSMTP_RecipientRejected(t *testing.T) {
	srv := newFakeSMTP(t)
	srv.rejectTo = true
	s := NewSMTP(config.SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "dev@example.com"})

	_, err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDelivery)
	var sendErr *mail.SendError
	require.True(t, errors.As(err, &sendErr))
	assert.Contains(t, err.Error(), "550")
}

func TestSMTP_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s := NewSMTP(config.SMTPConfig{Host: "127.0.0.1", Port: port, From: "dev@example.com"})
	_, err = s.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, model.ErrDelivery)
	assert.Equal(t, "delivery_error", model.ErrorKind(err))
}

func TestSMTP_InvalidMessage(t *testing.T) {
	s := NewSMTP(config.SMTPConfig{Host: "127.0.0.1", From: "dev@example.com"})

	msg := testMessage()
	msg.To = ""
	_, err := s.Send(context.Background(), msg)
	assert.ErrorIs(t, err, model.ErrDelivery)

	msg = testMessage()
	msg.To = "not an address"
	_, err = s.Send(context.Background(), msg)
	assert.ErrorIs(t, err, model.ErrDelivery)
}

func TestSMTP_MessageEncodesSubject(t *testing.T) {
	s := NewSMTP(config.SMTPConfig{From: "dev@example.com"})
	s.now = func() time.Time { return time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC) }
	msg := testMessage()
	msg.Subject = "Über imaging"

	m, receipt, err := s.message(msg)
	require.NoError(t, err)
	var buf strings.Builder
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()

	assert.Contains(t, strings.ToLower(out), "subject: =?utf-8?q?")
	assert.Contains(t, out, "Date: Mon, 04 May 2026 09:00:00 +0000")
	assert.Contains(t, out, "Message-ID: "+receipt)
	assert.True(t, strings.HasSuffix(receipt, "@example.com>"))
	assert.Equal(t, 587, NewSMTP(config.SMTPConfig{}).cfg.Port)
}

func TestSMTP_InvalidFrom(t *testing.T) {
	s := NewSMTP(config.SMTPConfig{Host: "127.0.0.1", From: "nobody"})
	_, err := s.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, model.ErrDelivery)
}

func TestLogTransport(t *testing.T) {
	tr := NewLogTransport()
	assert.Equal(t, "log", tr.Name())

	receipt, err := tr.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(receipt, "log-"))

	_, err = tr.Send(context.Background(), Message{To: "x@y.z"})
	assert.ErrorIs(t, err, model.ErrDelivery)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Send(ctx, testMessage())
	assert.ErrorIs(t, err, model.ErrDelivery)
}

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	tr, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "log", tr.Name())

	cfg.Pipeline.Transport = "smtp"
	tr, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "smtp", tr.Name())

	cfg.Pipeline.Transport = "carrier-pigeon"
	_, err = New(cfg)
	assert.Error(t, err)
}
