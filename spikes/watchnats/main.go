package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/nsyszr/punchclock/pkg/client/natsio"
	log "github.com/sirupsen/logrus"
)

// watchnats prints every sync event published by punchclock.
func main() {
	url := nats.DefaultURL
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	nc, err := nats.Connect(url)
	if err != nil {
		log.Fatal(err)
	}
	defer nc.Close()

	// Subscribe
	subject := natsio.DefaultBaseSubject + ".*.events.>"
	if _, err := nc.Subscribe(subject, func(m *nats.Msg) {
		deviceID, topic, ok := natsio.ParseSubject(natsio.DefaultBaseSubject, m.Subject)
		if !ok {
			fmt.Printf("subject: %s, message: %s\n", m.Subject, string(m.Data))
			return
		}
		fmt.Printf("device: %s, topic: %s, message: %s\n", deviceID, topic, string(m.Data))
	}); err != nil {
		log.Fatal(err)
	}

	// Wait for interrupt signal
	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, os.Interrupt)
	<-quitCh
}
