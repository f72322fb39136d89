package smtp

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dcd-mail/mailspool/scanner"
	"github.com/dcd-mail/mailspool/server/metrics"
	"github.com/dcd-mail/mailspool/server/store"
)

type cmdFunc func(s *Session, cmd *Command)

var commands = make(map[string]cmdFunc)
var extensions = make(map[string]cmdFunc)

func defineCmd(name string, f cmdFunc) { commands[name] = f }
func defineExt(name string, f cmdFunc) { extensions[name] = f }

func processCmd(s *Session, cmd *Command) bool {
	f, ok := commands[cmd.Name]
	if !ok {
		f, ok = extensions[cmd.Name]
	}
	if !ok {
		return false
	}
	f(s, cmd)
	return true
}

func init() {
	defineCmd("HELO", func(s *Session, cmd *Command) {
		if cmd.Arg == "" {
			s.Send(ParameterSyntaxError, "Argument expected")
			return
		}
		s.senderHost = cmd.Arg
		s.Send(250, "%s", s.Domain)
	})

	defineCmd("EHLO", func(s *Session, cmd *Command) {
		if cmd.Arg == "" {
			s.Send(ParameterSyntaxError, "Argument expected")
			return
		}
		s.senderHost = cmd.Arg

		w := s.BeginBatch(250)
		w.Send("%s", s.Domain)
		for name := range extensions {
			w.Send("%s", name)
		}
		w.End()
	})

	defineCmd("RSET", func(s *Session, cmd *Command) {
		s.draft = nil
		s.Send(250, "OK")
	})

	defineCmd("MAIL", func(s *Session, cmd *Command) {
		p := scanner.New(cmd.Arg)
		if !p.SkipStri("FROM:") {
			s.Send(ParameterSyntaxError, "The format is: MAIL FROM:<reverse-path>")
			return
		}
		rpath, err := ParsePath(p)
		if err != nil {
			s.Send(ParameterSyntaxError, "Malformed reverse-path")
			return
		}
		s.draft = NewDraft(rpath)
		s.Send(250, "OK")
	})

	defineCmd("RCPT", func(s *Session, cmd *Command) {
		if s.draft == nil {
			s.Send(BadSequenceOfCommands, "Need MAIL before RCPT")
			return
		}

		p := scanner.New(cmd.Arg)
		if !p.SkipStri("TO:") {
			s.Send(ParameterSyntaxError, "The format is: RCPT TO:<forward-path>")
			return
		}
		path, err := ParsePath(p)
		if err != nil {
			s.Send(ParameterSyntaxError, "Malformed forward-path")
			return
		}
		if len(path.Hosts) > 0 {
			s.Send(551, "Source routing not supported")
			return
		}

		s.draft.Recipients = append(s.draft.Recipients, path)
		s.Send(250, "OK")
	})

	defineCmd("DATA", func(s *Session, cmd *Command) {
		if s.draft == nil {
			s.Send(BadSequenceOfCommands, "Need MAIL/RCPT before DATA")
			return
		}
		if len(s.draft.Recipients) == 0 {
			s.Send(BadSequenceOfCommands, "No recipients specified")
			return
		}

		s.Send(354, "Start mail input, terminate with a dot line (.)")

		var body strings.Builder
		for {
			line, err := s.ReadLine()
			if err != nil {
				return
			}
			if line == ".\r\n" {
				break
			}
			if len(line) > 0 && line[0] == '.' {
				line = line[1:]
			}
			body.WriteString(line)
		}

		deliver(s, body.String())
	})

	defineCmd("VRFY", func(s *Session, cmd *Command) {
		s.Send(502, "Obsolete command")
	})

	defineExt("HELP", func(s *Session, cmd *Command) {
		s.Send(214, "See RFC 5321")
	})

	defineExt("AUTH", func(s *Session, cmd *Command) {
		parts := strings.SplitN(cmd.Arg, " ", 2)
		if len(parts) != 2 || parts[0] != "PLAIN" {
			s.Send(ParameterNotImplemented, "Only PLAIN <...> is supported")
			return
		}
		if s.authUser {
			s.Send(BadSequenceOfCommands, "Already authenticated")
			return
		}

		user, password, err := decodePlainAuth(parts[1])
		if err != nil {
			s.Send(ParameterSyntaxError, "%s", err.Error())
			return
		}

		if s.Auth == nil || s.Auth(user, password) != nil {
			s.Send(AuthInvalid, "Authentication credentials invalid")
			return
		}
		s.authUser = true
		s.Send(AuthOK, "Authentication succeeded")
	})
}

func decodePlainAuth(arg string) (user, password string, err error) {
	data, err := base64.StdEncoding.DecodeString(arg)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(string(data), "\x00")
	if len(parts) != 3 {
		return "", "", fmt.Errorf("could not parse AUTH PLAIN payload")
	}
	return parts[1], parts[2], nil
}

// deliver routes every recipient of the current draft to local storage
// or to an outbound relay, then replies once and resets the draft.
func deliver(s *Session, body string) {
	hostname := s.Hostname
	if hostname == "" {
		hostname, _ = os.Hostname()
	}

	receivedLine := fmt.Sprintf("Received: from %s by %s ; %s\r\n",
		s.senderHost, hostname, time.Now().Format(time.RFC822))

	allOK := true
	for _, to := range s.draft.Recipients {
		var err error
		if s.isLocalDomain(to.Addr.Host) {
			err = deliverLocal(s, to.Addr, receivedLine+body)
			if err != nil {
				metrics.MessagesDelivered.WithLabelValues("local-fail").Inc()
			} else {
				metrics.MessagesDelivered.WithLabelValues("local").Inc()
			}
		} else {
			err = relay(s.Resolver, s.Domain, s.draft.Sender.Addr, to.Addr, withEnvelopeHeaders(body, s.draft.Sender.Addr, to.Addr))
			if err != nil {
				metrics.MessagesDelivered.WithLabelValues("relay-fail").Inc()
			} else {
				metrics.MessagesDelivered.WithLabelValues("relay").Inc()
			}
		}
		if err != nil {
			allOK = false
		}
	}

	if allOK {
		s.Send(250, "OK Message accepted for delivery")
	} else {
		s.Send(451, "Requested action aborted: error in processing")
	}
	s.draft = nil
}

func deliverLocal(s *Session, to *Address, body string) error {
	rpathLine := fmt.Sprintf("Return-Path: <%s>\r\n", s.draft.Sender.Addr.Format())
	dtoLine := fmt.Sprintf("Delivered-To: %s\r\n", to.Format())
	_, err := s.Store.SaveEmail(to.Name, store.Inbox, []byte(rpathLine+dtoLine+body))
	return err
}

func withEnvelopeHeaders(body string, from, to *Address) string {
	if !strings.Contains(body, "From:") {
		body = fmt.Sprintf("From: %s\r\n", from.Format()) + body
	}
	if !strings.Contains(body, "To:") {
		body = fmt.Sprintf("To: %s\r\n", to.Format()) + body
	}
	return body
}
