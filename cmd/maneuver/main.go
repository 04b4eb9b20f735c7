// Maneuver - run one PiCar-X maneuver and exit
//
// Usage:
//
//	maneuver -list
//	maneuver -name k-turn-left -robot 192.168.1.50
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-picarx/internal/config"
	"github.com/teslashibe/go-picarx/internal/log"
	"github.com/teslashibe/go-picarx/pkg/filedb"
	"github.com/teslashibe/go-picarx/pkg/movement"
	"github.com/teslashibe/go-picarx/pkg/robot"
)

func main() {
	name := flag.String("name", "", "maneuver to run (see -list)")
	list := flag.Bool("list", false, "list maneuvers and exit")
	robotAddr := flag.String("robot", config.RobotAddr(""), "motor bridge host[:port] (empty = simulated car)")
	dbPath := flag.String("db", config.DBPath(""), "settings file (empty = defaults)")
	flag.Parse()

	if *list {
		for _, n := range movement.Names() {
			m, _ := movement.Lookup(n)
			fmt.Printf("%-22s %-26s %5.1fs\n", n, m.Label, m.Duration().Seconds())
			for i, s := range m.Steps {
				fmt.Printf("    %d. %s\n", i+1, s)
			}
		}
		return
	}

	m, err := movement.Lookup(*name)
	if err != nil {
		fmt.Printf("❌ %v (try -list)\n", err)
		os.Exit(2)
	}

	log.Init(config.LogLevel())
	logger := log.L()

	store, err := filedb.Open(*dbPath)
	if err != nil {
		fmt.Printf("❌ Settings: %v\n", err)
		os.Exit(1)
	}
	trim, err := filedb.GetInt(store, config.KeySteeringTrim, 0)
	if err == nil {
		err = robot.ValidateTrim(trim)
	}
	if err != nil {
		fmt.Printf("⚠️  Ignoring steering trim: %v\n", err)
		trim = 0
	}

	var ctrl robot.Controller
	if *robotAddr == "" {
		ctrl = robot.NewSimController(logger)
	} else {
		ctrl = robot.NewHTTPController(config.RobotAPIURL(*robotAddr))
	}
	trimmedCtrl, _ := robot.WithSteeringTrim(ctrl, trim) // trim validated above
	session := robot.NewSession(trimmedCtrl, logger)
	engine := movement.NewEngine(session, nil, movement.DefaultConfig(), logger)

	// Ctrl+C stops the car mid-maneuver
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = engine.Stop()
	}()

	fmt.Printf("🚗 %s (%.1fs)\n", m.Label, m.Duration().Seconds())
	err = engine.Run(ctx, m)
	switch {
	case err == nil:
		fmt.Println("✅ Done")
	case errors.Is(err, movement.ErrInterrupted):
		fmt.Println("🛑 Stopped")
	default:
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}
