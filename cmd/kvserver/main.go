// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/rfs-go/rfs-go/config"
	"github.com/rfs-go/rfs-go/internal/admin"
	"github.com/rfs-go/rfs-go/internal/aof"
	"github.com/rfs-go/rfs-go/internal/command"
	"github.com/rfs-go/rfs-go/internal/runtimeEnv"
	"github.com/rfs-go/rfs-go/internal/server"
	"github.com/rfs-go/rfs-go/internal/store"
	"github.com/rfs-go/rfs-go/log"
)

func main() {
	flags, cfg := config.ParseFlags()

	// See https://github.com/google/gops (runtime overhead is almost zero).
	if flags.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := config.LoadEnvFile(flags.EnvFile); err != nil {
		log.Fatalf("loading '%s' failed: %s", flags.EnvFile, err.Error())
	}

	if err := config.LoadConfigFile(flags.ConfigFile, cfg); err != nil {
		log.Fatal(err)
	}
	log.SetLogLevel(cfg.LogLevel)

	fsyncPolicy, err := aof.ParsePolicy(cfg.AOFFsync)
	if err != nil {
		log.Fatal(err)
	}

	evictionInterval, err := time.ParseDuration(cfg.EvictionInterval)
	if err != nil {
		log.Fatalf("invalid -eviction-interval %q: %s", cfg.EvictionInterval, err.Error())
	}

	st := store.New()

	// Both replay and opening the log for writes are best-effort per
	// §4.5/§7: a corrupt or unreadable log restores whatever it can (or
	// nothing) and the server still starts, falling back to running
	// without persistence rather than refusing to boot.
	var appender command.Appender
	var writer *aof.Writer
	if cfg.AOFPath != "" {
		if n, err := aof.Replay(cfg.AOFPath, st); err != nil {
			log.Errorf("replaying durability log %q: %s (starting with whatever was restored)", cfg.AOFPath, err.Error())
		} else if n > 0 {
			log.Infof("restored %d command(s) from %s", n, cfg.AOFPath)
		}

		w, err := aof.Open(cfg.AOFPath, fsyncPolicy)
		if err != nil {
			log.Errorf("opening durability log %q: %s (continuing without persistence)", cfg.AOFPath, err.Error())
		} else {
			writer = w
			appender = writer
		}
	}

	dispatcher := command.New(st, appender)

	srv, err := server.New(cfg.Addr, cfg.MaxConnections, dispatcher)
	if err != nil {
		log.Fatal(err)
	}

	sched, err := server.NewScheduler()
	if err != nil {
		log.Fatal(err)
	}
	if err := sched.RegisterEviction(st, evictionInterval); err != nil {
		log.Fatal(err)
	}
	if writer != nil && cfg.AOFCompactionInterval != "" {
		compactionInterval, err := time.ParseDuration(cfg.AOFCompactionInterval)
		if err != nil {
			log.Errorf("invalid -aof-compaction-interval %q: %s (scheduled compaction disabled)", cfg.AOFCompactionInterval, err.Error())
		} else if err := sched.RegisterCompaction(writer, compactionInterval); err != nil {
			log.Errorf("registering aof compaction job: %s", err.Error())
		}
	}

	var aofCtx context.Context
	var aofCancel context.CancelFunc
	if writer != nil {
		aofCtx, aofCancel = context.WithCancel(context.Background())
		go writer.RunPeriodicFsync(aofCtx, time.Second)

		if cfg.S3Bucket != "" {
			mirror, err := aof.NewS3Mirror(aofCtx, cfg.S3Bucket, cfg.S3Prefix, cfg.AOFPath)
			if err != nil {
				log.Fatal(err)
			}
			go mirror.RunPeriodicUpload(aofCtx, time.Minute)
		}
	}

	var adminSrv *http.Server
	if cfg.MetricsAddr != "" {
		adminSrv = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      admin.NewHandler(st),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	// Because the server may want to bind to a privileged port, the
	// listener is already established above; only now do we drop
	// privileges, mirroring cc-backend's own ordering in main().
	if err := runtimeEnv.DropPrivileges(cfg.User, cfg.Group); err != nil {
		log.Fatalf("error while changing user: %s", err.Error())
	}

	sched.Start()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(); err != nil {
			log.Errorf("server error: %s", err.Error())
		}
	}()

	if adminSrv != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("admin endpoint listening at %s...", cfg.MetricsAddr)
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("admin server error: %s", err.Error())
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	runtimeEnv.SystemdNotifiy(false, "shutting down")

	srv.Shutdown()
	if err := sched.Shutdown(); err != nil {
		log.Errorf("scheduler shutdown: %s", err.Error())
	}
	if adminSrv != nil {
		adminSrv.Shutdown(context.Background())
	}
	if writer != nil {
		if err := writer.Flush(); err != nil {
			log.Errorf("final aof flush: %s", err.Error())
		}
		writer.Close()
		aofCancel()
	}

	wg.Wait()
	log.Print("Graceful shutdown completed!")
}
