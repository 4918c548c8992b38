package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

// SMTPSender delivers through a plain SMTP relay. Provider reply codes map
// onto result kinds: 4xx is transient, 5xx is permanent, with the
// unknown-mailbox codes reported as hard bounces.
type SMTPSender struct {
	Addr string // host:port
	Auth smtp.Auth
}

// Send runs one SMTP session bounded by ctx. The dial uses the context and
// the connection carries its deadline, so a silent or stalled relay
// surfaces as context.DeadlineExceeded instead of blocking the worker.
func (s *SMTPSender) Send(ctx context.Context, msg Message) (Result, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return s.outcome(ctx, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close() // unblocks any in-flight read or write
		case <-done:
		}
	}()

	host, _, err := net.SplitHostPort(s.Addr)
	if err != nil {
		host = s.Addr
	}
	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return s.outcome(ctx, err)
	}
	defer client.Close()

	if s.Auth != nil {
		if err := client.Auth(s.Auth); err != nil {
			return s.outcome(ctx, err)
		}
	}
	if err := client.Mail(msg.FromEmail); err != nil {
		return s.outcome(ctx, err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return s.outcome(ctx, err)
	}
	w, err := client.Data()
	if err != nil {
		return s.outcome(ctx, err)
	}
	if _, err := w.Write(buildMIME(msg)); err != nil {
		return s.outcome(ctx, err)
	}
	if err := w.Close(); err != nil {
		return s.outcome(ctx, err)
	}
	client.Quit()
	return Result{Kind: Delivered}, nil
}

// outcome maps a session error. Context expiry wins, then connection
// timeouts, then the SMTP reply code.
func (s *SMTPSender) outcome(ctx context.Context, err error) (Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return Result{}, context.DeadlineExceeded
	}
	return classifySMTPError(err)
}

// classifySMTPError reads the reply code off the error text. net/smtp
// surfaces protocol errors as "<code> <message>"; anything without a code
// (dial failures, TLS errors) is a transport error left to the caller.
func classifySMTPError(err error) (Result, error) {
	text := err.Error()
	if len(text) < 3 {
		return Result{}, err
	}
	code := text[:3]
	switch {
	case strings.HasPrefix(code, "4"):
		return Result{Kind: TransientError, Code: text}, nil
	case code == "550" || code == "551" || code == "553":
		return Result{Kind: HardBounce, Code: text}, nil
	case strings.HasPrefix(code, "5"):
		return Result{Kind: PermanentError, Code: text}, nil
	default:
		return Result{}, err
	}
}

func buildMIME(msg Message) []byte {
	var b strings.Builder
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	return []byte(b.String())
}
