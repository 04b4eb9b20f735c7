// PiCar-X - interactive maneuver driver
//
// Reads single key presses from the terminal and runs the bound maneuver:
// basic driving, parallel parking and three-point turns. SPACE stops the car,
// X exits. With -web the same keys can be sent over HTTP or the teleop
// websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/teslashibe/go-picarx/internal/config"
	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/dispatch"
	"github.com/teslashibe/go-picarx/pkg/filedb"
	"github.com/teslashibe/go-picarx/pkg/movement"
	"github.com/teslashibe/go-picarx/pkg/robot"
	"github.com/teslashibe/go-picarx/pkg/terminal"
	"github.com/teslashibe/go-picarx/pkg/web"
)

const title = "PiCar-X Maneuver Control"

var (
	robotAddr = flag.String("robot", config.RobotAddr(""), "motor bridge host[:port] (empty = simulated car)")
	webPort   = flag.String("web", config.WebPort(""), "dashboard and teleop port (empty = disabled)")
	dbPath    = flag.String("db", config.DBPath(""), "settings file (empty = defaults)")
	debug     = flag.Bool("debug", false, "debug logging")
	blocking  = flag.Bool("blocking", false, "stop takes effect when the current hold ends; the remaining steps are skipped")
	logFile   = flag.String("log", "picarx.log", "log file while the terminal is in use")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	level := config.LogLevel()
	if *debug {
		level = "debug"
	}
	var logOut io.Writer = io.Discard
	if f, err := tea.LogToFile(*logFile, ""); err == nil {
		defer f.Close()
		logOut = f
	}
	log.InitWriter(level, logOut)
	logger := log.L()

	fmt.Println("🚗 " + title)
	fmt.Println("=========================")

	store, err := filedb.Open(*dbPath)
	if err != nil {
		fmt.Printf("❌ Settings: %v\n", err)
		return 1
	}
	trim, err := filedb.GetInt(store, config.KeySteeringTrim, 0)
	if err == nil {
		err = robot.ValidateTrim(trim)
	}
	if err != nil {
		fmt.Printf("⚠️  Ignoring steering trim: %v\n", err)
		trim = 0
	}

	ctrl := controller(*robotAddr, logger)
	trimmedCtrl, _ := robot.WithSteeringTrim(ctrl, trim) // trim validated above
	session := robot.NewSession(trimmedCtrl, logger)

	cfg := movement.DefaultConfig()
	cfg.Interruptible = !*blocking
	engine := movement.NewEngine(session, nil, cfg, logger)

	// Known state before the first key: stopped and centered
	if err := engine.Stop(); err != nil {
		fmt.Printf("❌ Car not responding: %v\n", err)
		return 1
	}
	fmt.Println("✅ Car stopped and centered")

	keys := dispatch.DefaultKeyMap()
	term := terminal.New(title, keys.Menu(), tea.WithoutSignalHandler())
	d := dispatch.New(engine, keys, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sources := []dispatch.Source{term}
	if *webPort != "" {
		remote := dispatch.NewChanSource("web", 16)
		defer remote.Close()

		srv := web.NewServer(web.Config{
			Port:       *webPort,
			Engine:     engine,
			Dispatcher: d,
			Keys:       remote,
			Logger:     logger,
		})
		d.AddObserver(srv)
		engine.OnRun(srv.OnRun)
		srv.StartAsync(ctx)
		defer srv.Shutdown()
		sources = append(sources, remote)
		fmt.Printf("🌐 Dashboard: http://localhost:%s  Teleop: ws://localhost:%s/ws/teleop\n", *webPort, *webPort)
	}

	term.Start()
	runErr := d.Run(ctx, sources...)
	_ = term.Quit()

	if runErr != nil {
		fmt.Printf("❌ %v\n", runErr)
		if robot.IsHardwareFault(runErr) {
			fmt.Println("🛑 Hardware fault: check the car before driving again")
		}
		return 1
	}
	fmt.Println("👋 Goodbye!")
	return 0
}

// controller returns the HTTP bridge for addr, or the simulated car when
// addr is empty.
func controller(addr string, logger *slog.Logger) robot.Controller {
	if addr == "" {
		fmt.Println("🧪 No bridge configured, using simulated car")
		return robot.NewSimController(logger)
	}
	url := config.RobotAPIURL(addr)
	fmt.Printf("🔌 Bridge: %s\n", url)
	return robot.NewHTTPController(url)
}
