package smtp

import (
	"errors"

	"github.com/dcd-mail/mailspool/scanner"
)

// Command is one client input line split into its verb and the rest
// of the line.
type Command struct {
	Name string
	Arg  string
}

func parseCommand(line string) (*Command, error) {
	var name, arg string

	r := scanner.New(line)

	for isAlpha(r.Next()) {
		name += string(toUpper(r.Get()))
	}

	if r.Next() == ' ' {
		r.Get()
		for r.More() && r.Next() != '\r' {
			arg += string(r.Get())
		}
	}

	if r.Get() != '\r' || r.Get() != '\n' {
		return nil, errors.New("<CRLF> expected")
	}

	return &Command{name, arg}, nil
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	return c
}
