package smtp

// Address is a mailbox endpoint, like bob@example.net. Addresses are
// always reached through ParsePath, which handles the angle-bracket
// and source-route syntax of SMTP forward/reverse paths.
type Address struct {
	Name string
	Host string
}

func (a *Address) Format() string {
	return a.Name + "@" + a.Host
}
