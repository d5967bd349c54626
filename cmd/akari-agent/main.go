// Command akari-agent is the Guest Agent: it runs inside the guest VM,
// listens on the bootstrap vsock port for create requests, and spawns
// a per-container listener on the sidecar port handed back by the
// Control Server for the rest of the container's lifecycle.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdlayher/vsock"

	"akari/pkg/guestagent"
	"akari/pkg/log"
)

func main() {
	if err := log.Configure(&log.Config{Level: "info", Format: "text", Output: "stderr"}); err != nil {
		fmt.Fprintf(os.Stderr, "configuring logging: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	agent := guestagent.New(listenVsock)
	if err := agent.Serve(ctx); err != nil {
		log.GetLogger(ctx).WithError(err).Error("guest agent exited")
		os.Exit(1)
	}
}

func listenVsock(port uint32) (net.Listener, error) {
	return vsock.Listen(port, nil)
}
