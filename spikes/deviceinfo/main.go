package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/nsyszr/punchclock/pkg/model"
	"github.com/nsyszr/punchclock/pkg/terminal"
	"github.com/nsyszr/punchclock/pkg/terminal/proto"
	log "github.com/sirupsen/logrus"
)

// deviceinfo connects to a terminal and prints its metadata without
// downloading any records.
func main() {
	if len(os.Args) < 2 || len(os.Args) > 4 {
		log.Fatal("usage: deviceinfo <host> [port] [comm-key]")
	}

	device := model.Device{DeviceID: os.Args[1], Host: os.Args[1], Port: proto.DefaultPort}
	if len(os.Args) > 2 {
		port, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatal("invalid port: ", err)
		}
		device.Port = port
	}
	if len(os.Args) > 3 {
		key, err := strconv.Atoi(os.Args[3])
		if err != nil {
			log.Fatal("invalid comm key: ", err)
		}
		device.CommKey = key
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sess := terminal.NewSession(device, terminal.Options{}, nil)
	if err := sess.Connect(ctx, 5*time.Second); err != nil {
		log.Fatal(err)
	}
	defer sess.Disconnect()

	info, err := sess.FetchInfo(ctx)
	if err != nil {
		log.Fatal(err)
	}

	j, _ := json.MarshalIndent(info, "", "  ")
	fmt.Printf("%s\n", j)
	fmt.Printf("clock offset: %s\n", info.ClockOffset)
}
