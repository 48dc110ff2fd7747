// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command notifiers-relay bridges the chat server to APNS, FCM, and
// UBports push notifications, and runs the durable heartbeat scheduler
// that keeps idle devices' notification channels alive.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/deltachat/notifiers-relay/internal/apns"
	"github.com/deltachat/notifiers-relay/internal/fcm"
	"github.com/deltachat/notifiers-relay/internal/httpfront"
	"github.com/deltachat/notifiers-relay/internal/logging"
	"github.com/deltachat/notifiers-relay/internal/metrics"
	"github.com/deltachat/notifiers-relay/internal/notifier"
	"github.com/deltachat/notifiers-relay/internal/pgp"
	"github.com/deltachat/notifiers-relay/internal/schedule"
	"github.com/deltachat/notifiers-relay/internal/state"
	"github.com/deltachat/notifiers-relay/internal/ubports"
)

func main() {
	certificateFile := flag.String("certificate-file", "", "Path to the PKCS#12 certificate bundle")
	password := flag.String("password", "", "Password for the certificate file")
	topic := flag.String("topic", "", "APNS topic")
	host := flag.String("host", "127.0.0.1", "Host on which to listen")
	port := flag.String("port", "9000", "Port on which to listen")
	metricsAddr := flag.String("metrics", "", "Address (host:port) for the independent metrics listener")
	dbPath := flag.String("db", "notifiers.db", "Path to the schedule database")
	interval := flag.Duration("interval", 20*time.Minute, "Heartbeat renotification interval")
	fcmKeyPath := flag.String("fcm-key-path", "", "Path to the FCM service account JSON key")
	openpgpKeyringPath := flag.String("openpgp-keyring-path", "", "Path to the armored OpenPGP secret keyring")
	syslogAddr := flag.String("syslog-addr", "", "host:port of a remote syslog collector to additionally forward logs to")
	syslogProtocol := flag.String("syslog-protocol", "udp", "Transport for --syslog-addr (udp or tcp)")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if *syslogAddr != "" {
		syslogHost, syslogPortStr, err := net.SplitHostPort(*syslogAddr)
		if err != nil {
			logging.Error("invalid --syslog-addr", "error", err)
			os.Exit(1)
		}
		syslogPort, err := strconv.Atoi(syslogPortStr)
		if err != nil {
			logging.Error("invalid --syslog-addr port", "error", err)
			os.Exit(1)
		}
		logCfg.Syslog = logging.SyslogConfig{
			Enabled:  true,
			Host:     syslogHost,
			Port:     syslogPort,
			Protocol: *syslogProtocol,
			Tag:      "notifiers-relay",
			Facility: 1,
		}
	}
	logger := logging.New(logCfg).WithComponent("main")
	logging.SetDefault(logger)

	if *certificateFile == "" {
		logging.Error("--certificate-file is required")
		os.Exit(1)
	}

	production, sandbox, err := apns.NewPair(*certificateFile, *password, *topic)
	if err != nil {
		logging.Error("failed to build apns clients", "error", err)
		os.Exit(1)
	}

	sched, err := schedule.Open(*dbPath)
	if err != nil {
		logging.Error("failed to open schedule database", "error", err)
		os.Exit(1)
	}
	defer sched.Close()

	var decryptor *pgp.Decryptor
	if *openpgpKeyringPath != "" {
		armorText, err := os.ReadFile(*openpgpKeyringPath)
		if err != nil {
			logging.Error("failed to read openpgp keyring", "error", err)
			os.Exit(1)
		}
		decryptor, err = pgp.New(string(armorText))
		if err != nil {
			logging.Error("failed to parse openpgp keyring", "error", err)
			os.Exit(1)
		}
	}

	var fcmClient *fcm.Client
	if *fcmKeyPath != "" {
		fcmClient, err = fcm.New(*fcmKeyPath)
		if err != nil {
			logging.Error("failed to load fcm service account key", "error", err)
			os.Exit(1)
		}
	}

	registry := metrics.NewRegistry()
	registry.Register()

	st := &state.State{
		Schedule:   sched,
		Production: production,
		Sandbox:    sandbox,
		UBports:    ubports.New(),
		PGP:        decryptor,
		Metrics:    registry,
		Topic:      *topic,
	}
	if fcmClient != nil {
		st.FCM = fcmClient
	}

	logging.Info("notifiers-relay starting", "interval", *interval, "db", *dbPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var wg sync.WaitGroup

	if *metricsAddr != "" {
		metricsServer := metrics.NewServer(*metricsAddr, logging.Default().WithComponent("metrics"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.ListenAndServe(ctx); err != nil {
				logging.Error("metrics listener failed", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.Run(ctx, st, *interval)
	}()

	httpServer := httpfront.New(*host+":"+*port, st)
	if err := httpServer.ListenAndServe(ctx); err != nil {
		logging.Error("http front listener failed", "error", err)
		cancel()
	}

	wg.Wait()
	logging.Info("notifiers-relay exited")
}
