package smtp

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dcd-mail/mailspool/server/metrics"
)

const relayDialTimeout = 10 * time.Second

// relay opens an outbound SMTP connection to the recipient's domain
// and runs the fixed dialog, dot-stuffing the body on the way out. It
// never partially delivers: any unexpected reply aborts the attempt.
func relay(resolver interface {
	ResolveMX(string) string
	ResolveA(string) string
}, ourDomain string, from, to *Address, body string) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "fail"
		}
		metrics.RelayAttempts.WithLabelValues(outcome).Inc()
	}()

	chosen := resolver.ResolveMX(to.Host)
	if chosen == "" {
		chosen = to.Host
	}
	ip := resolver.ResolveA(chosen)
	if ip == "" {
		return fmt.Errorf("could not resolve %s", to.Host)
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, "25"), relayDialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	r := bufio.NewReader(conn)

	if code, err := readReply(r); err != nil || code != 220 {
		return fmt.Errorf("greeting rejected: %d %v", code, err)
	}

	writeLine(conn, "EHLO %s", ourDomain)
	if code, err := readReply(r); err != nil || code != 250 {
		writeLine(conn, "HELO %s", ourDomain)
		if code, err := readReply(r); err != nil || code != 250 {
			return fmt.Errorf("HELO rejected: %d %v", code, err)
		}
	}

	writeLine(conn, "MAIL FROM:<%s>", from.Format())
	if code, err := readReply(r); err != nil || code != 250 {
		return fmt.Errorf("MAIL FROM rejected: %v", err)
	}

	writeLine(conn, "RCPT TO:<%s>", to.Format())
	code, err := readReply(r)
	if err != nil || (code != 250 && code != 251) {
		return fmt.Errorf("RCPT TO rejected: %v", err)
	}

	writeLine(conn, "DATA")
	if code, err := readReply(r); err != nil || code != 354 {
		return fmt.Errorf("DATA rejected: %v", err)
	}

	for _, line := range strings.Split(body, "\r\n") {
		if strings.HasPrefix(line, ".") {
			line = "." + line
		}
		fmt.Fprintf(conn, "%s\r\n", line)
	}
	fmt.Fprint(conn, ".\r\n")
	if code, err := readReply(r); err != nil || code != 250 {
		return fmt.Errorf("message rejected: %v", err)
	}

	writeLine(conn, "QUIT")
	readReply(r)
	return nil
}

func writeLine(conn net.Conn, format string, args ...interface{}) {
	fmt.Fprintf(conn, format+"\r\n", args...)
}

// readReply reads one SMTP client-side reply, following continuation
// lines ("250-...") until a line with a space separator ends it.
func readReply(r *bufio.Reader) (int, error) {
	var code int
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return 0, err
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 4 {
			return 0, fmt.Errorf("malformed reply: %q", line)
		}
		code, err = strconv.Atoi(line[:3])
		if err != nil {
			return 0, err
		}
		if line[3] == ' ' {
			break
		}
		// line[3] == '-': continuation line, keep reading
	}
	return code, nil
}
