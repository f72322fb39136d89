// Command mailspool runs a single-domain SMTP/IMAP/POP3 mail server
// backed by a per-user on-disk mailbox store, with its own raw-UDP
// DNS resolver for outbound relay routing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dcd-mail/mailspool/server"
)

func main() {
	configPath := flag.String("config", "", "optional TOML config file layered on top of the compiled-in defaults")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-config file] <domain> <maxWorkers>\n", os.Args[0])
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		os.Exit(1)
	}

	domain := args[0]
	maxWorkers, err := strconv.Atoi(args[1])
	if err != nil || maxWorkers <= 0 {
		maxWorkers = 10
	}

	cfg, err := loadConfig(domain, maxWorkers, *configPath)
	if err != nil {
		log.Printf("config: %s\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg)
	if err := srv.Run(ctx); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
