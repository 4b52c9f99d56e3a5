package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	chatplugin "github.com/ChatPlugin/ChatPlugin-sub007"
	"github.com/ChatPlugin/ChatPlugin-sub007/server"
	"github.com/itzg/go-flagsfiller"
	"github.com/sirupsen/logrus"
)

type CliConfig struct {
	Version bool `usage:"Output version and exit"`
	Trace   bool `usage:"Enable trace logs, which include every packet"`

	ServerConfig server.Config `flatten:"true"`
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func showVersion() {
	fmt.Printf("%v, commit %v, built at %v", version, commit, date)
}

func main() {
	var cliConfig CliConfig
	err := flagsfiller.Parse(&cliConfig, flagsfiller.WithEnv(""))
	if err != nil {
		logrus.Fatal(err)
	}

	if cliConfig.Version {
		showVersion()
		os.Exit(0)
	}

	if cliConfig.Trace {
		logrus.SetLevel(logrus.TraceLevel)
	} else if cliConfig.ServerConfig.Debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.Debug("Debug logs enabled")
	}

	config := &cliConfig.ServerConfig
	config.Link.ClientsToAllow = chatplugin.SplitList(config.Link.ClientsToAllow)
	config.Link.ClientsToDeny = chatplugin.SplitList(config.Link.ClientsToDeny)
	config.Link.TrustedProxies = chatplugin.SplitList(config.Link.TrustedProxies)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := server.NewServer(ctx, config)
	if err != nil {
		logrus.WithError(err).Fatal("Could not setup server")
	}

	logrus.
		WithField("role", config.Role).
		WithField("node", s.Node().ID()).
		WithField("args", flag.Args()).
		Info("Starting")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range signals {
			switch sig {
			case syscall.SIGHUP:
				logrus.Info("Received SIGHUP, reloading message catalog")
				s.ReloadConfig()
			default:
				logrus.WithField("signal", sig).Info("Stopping")
				cancel()
				return
			}
		}
	}()

	if err := s.Run(); err != nil {
		logrus.WithError(err).Fatal("Server failed")
	}
}
