// PiCar-X Remote - drive a PiCar-X over the network
//
// Connects to the teleop websocket of a running picarx -web and forwards
// key presses from this terminal. Ctrl+C stops the car and disconnects.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-picarx/internal/config"
	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/dispatch"
	"github.com/teslashibe/go-picarx/pkg/teleop"
	"github.com/teslashibe/go-picarx/pkg/terminal"
)

func main() {
	addr := flag.String("car", "localhost:"+config.DefaultWebPort, "car web address (host:port or URL)")
	logFile := flag.String("log", "picarx-remote.log", "log file while the terminal is in use")
	flag.Parse()
	os.Exit(run(*addr, *logFile))
}

func run(addr, logFile string) int {
	var logOut io.Writer = io.Discard
	if f, err := tea.LogToFile(logFile, ""); err == nil {
		defer f.Close()
		logOut = f
	}
	log.InitWriter(config.LogLevel(), logOut)
	logger := log.L()

	url, err := teleop.URL(addr)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return 2
	}

	fmt.Printf("📡 Connecting to %s... ", url)
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	client, err := teleop.Dial(dialCtx, url)
	cancel()
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return 1
	}
	fmt.Println("✅")
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	term := terminal.New("PiCar-X Remote ("+addr+")", dispatch.DefaultKeyMap().Menu(), tea.WithoutSignalHandler())
	term.Start()
	err = teleop.NewRelay(client, term, logger).Run(ctx, term)
	_ = term.Quit()

	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return 1
	}
	fmt.Println("👋 Goodbye!")
	return 0
}
