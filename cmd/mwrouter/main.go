// Command mwrouter runs a Router and its co-located Manager: the two
// processes in spec §4.5/§4.6 that every Portal on a platform connects
// through.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bluefin-robotics/middleware/pkg/admin"
	"github.com/bluefin-robotics/middleware/pkg/config"
	"github.com/bluefin-robotics/middleware/pkg/flags"
	"github.com/bluefin-robotics/middleware/pkg/manager"
	"github.com/bluefin-robotics/middleware/pkg/router"
	log "github.com/sirupsen/logrus"
)

func main() {
	cmd := flag.NewFlagSet("mwrouter", flag.ExitOnError)

	configPath := cmd.String("config", "", "path to a router config YAML file")
	adminAddr := cmd.String("admin-addr", ":11143", "address to serve the admin/debug server on")
	enablePprof := cmd.Bool("enable-pprof", false, "enable pprof endpoints on the admin server")

	flags.ConfigureAndParse(cmd, os.Args[1:])

	cfg, err := config.LoadRouter(*configPath)
	if err != nil {
		log.Fatalf("failed to load router config: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := admin.NewFeed()
	rt := router.New(router.Config{PublishAddr: cfg.PublishAddr, SubscribeAddr: cfg.SubscribeAddr})
	rt.SetFeed(feed)
	if err := rt.Listen(); err != nil {
		log.Fatalf("failed to bind router sockets: %s", err)
	}

	mgr := manager.New(cfg.ManagerAddr)
	mgr.Handle(manager.ProvidePubSubSockets, func(manager.Request) (any, error) {
		return manager.ProvidePubSubSocketsReply{
			Publish:   manager.SocketDescriptor{Transport: "tcp", Address: rt.BoundPublishAddr()},
			Subscribe: manager.SocketDescriptor{Transport: "tcp", Address: rt.BoundSubscribeAddr()},
		}, nil
	})
	managerAddr, err := mgr.Serve(ctx)
	if err != nil {
		log.Fatalf("failed to start manager: %s", err)
	}
	log.Infof("manager listening on %s", managerAddr)

	ready := false
	adminServer := admin.NewServer(*adminAddr, *enablePprof, &ready, rt, feed)
	go func() {
		log.Infof("starting admin server on %s", *adminAddr)
		if err := adminServer.ListenAndServe(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				log.Infof("admin server closed (%s)", *adminAddr)
			} else {
				log.Errorf("admin server error (%s): %s", *adminAddr, err)
			}
		}
	}()

	go func() {
		if err := rt.Serve(ctx); err != nil {
			log.Fatalf("router stopped serving: %s", err)
		}
	}()
	ready = true

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	cancel()
	adminServer.Shutdown(context.Background())
}
