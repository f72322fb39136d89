package pop3

import "testing"

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line string
		name string
		arg  string
	}{
		{"USER bob\r\n", "USER", "bob"},
		{"stat\r\n", "STAT", ""},
		{"retr  3  \r\n", "RETR", "3"},
		{"QUIT\r\n", "QUIT", ""},
	}

	for _, c := range cases {
		t.Run(c.line, func(t *testing.T) {
			cmd, err := parseCommand(c.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Name != c.name {
				t.Errorf("name: got %q, want %q", cmd.Name, c.name)
			}
			if cmd.Arg != c.arg {
				t.Errorf("arg: got %q, want %q", cmd.Arg, c.arg)
			}
		})
	}
}

func TestParseCommandRejectsEmptyLine(t *testing.T) {
	_, err := parseCommand("\r\n")
	if err == nil {
		t.Fatal("expected an error for an empty line")
	}
}
