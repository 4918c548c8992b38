package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeSMTPServer speaks just enough SMTP for one session. rcptReply lets a
// test script the response to RCPT TO.
func fakeSMTPServer(t *testing.T, rcptReply string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		reply := func(s string) { conn.Write([]byte(s + "\r\n")) }

		reply("220 fake.test ready")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 fake.test")
			case strings.HasPrefix(cmd, "MAIL"):
				reply("250 ok")
			case strings.HasPrefix(cmd, "RCPT"):
				reply(rcptReply)
			case cmd == "DATA":
				reply("354 go ahead")
				for {
					l, err := r.ReadString('\n')
					if err != nil {
						return
					}
					if strings.TrimRight(l, "\r\n") == "." {
						break
					}
				}
				reply("250 queued")
			case cmd == "QUIT":
				reply("221 bye")
				return
			default:
				reply("250 ok")
			}
		}
	}()
	return ln.Addr().String()
}

func TestSMTPSenderDelivers(t *testing.T) {
	addr := fakeSMTPServer(t, "250 ok")
	s := &SMTPSender{Addr: addr}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.Send(ctx, Message{
		FromEmail: "team@brightpost.test",
		To:        "ana@example.test",
		Subject:   "hello",
		HTMLBody:  "<p>hi</p>",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != Delivered {
		t.Errorf("expected delivered, got %s (%s)", res.Kind, res.Code)
	}
}

func TestSMTPSenderReportsBounceFromRcptReply(t *testing.T) {
	addr := fakeSMTPServer(t, "550 no such user")
	s := &SMTPSender{Addr: addr}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.Send(ctx, Message{FromEmail: "team@brightpost.test", To: "gone@example.test"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != HardBounce {
		t.Errorf("expected hard bounce, got %s (%s)", res.Kind, res.Code)
	}
}

func TestSMTPSenderHonorsContextDeadline(t *testing.T) {
	// A relay that accepts the connection and never sends the greeting.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	hold := make(chan struct{})
	defer close(hold)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-hold
	}()

	s := &SMTPSender{Addr: ln.Addr().String()}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = s.Send(ctx, Message{FromEmail: "team@brightpost.test", To: "ana@example.test"})
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed > time.Second {
		t.Errorf("send blocked %s past a 100ms deadline", elapsed)
	}
}

func TestClassifySMTPError(t *testing.T) {
	cases := []struct {
		errText string
		want    ResultKind
	}{
		{"421 service not available", TransientError},
		{"451 local error in processing", TransientError},
		{"550 no such user", HardBounce},
		{"551 user not local", HardBounce},
		{"553 mailbox name not allowed", HardBounce},
		{"552 exceeded storage allocation", PermanentError},
		{"554 transaction failed", PermanentError},
	}
	for _, tc := range cases {
		res, err := classifySMTPError(errors.New(tc.errText))
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.errText, err)
			continue
		}
		if res.Kind != tc.want {
			t.Errorf("%q: expected %s, got %s", tc.errText, tc.want, res.Kind)
		}
		if res.Code != tc.errText {
			t.Errorf("%q: reply text must be preserved, got %q", tc.errText, res.Code)
		}
	}
}

func TestClassifySMTPErrorPassesThroughTransportFailures(t *testing.T) {
	dialErr := errors.New("dial tcp 127.0.0.1:25: connection refused")
	if _, err := classifySMTPError(dialErr); err == nil {
		t.Error("non-protocol errors must be returned to the caller")
	}
}

func TestBuildMIME(t *testing.T) {
	body := string(buildMIME(Message{
		FromName:  "Team",
		FromEmail: "team@brightpost.test",
		To:        "ana@example.test",
		Subject:   "Welcome Ana",
		HTMLBody:  "<p>Hi Ana</p>",
	}))

	for _, want := range []string{
		"From: Team <team@brightpost.test>\r\n",
		"To: ana@example.test\r\n",
		"Subject: Welcome Ana\r\n",
		"Content-Type: text/html",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
	if !strings.HasSuffix(body, "\r\n\r\n<p>Hi Ana</p>") {
		t.Errorf("body must follow a blank line:\n%s", body)
	}
}
