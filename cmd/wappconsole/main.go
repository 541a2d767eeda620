package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wappzakelijk/console/config"
	"github.com/wappzakelijk/console/internal/adminapi"
	"github.com/wappzakelijk/console/internal/app"
	"github.com/wappzakelijk/console/internal/broadcast"
	"github.com/wappzakelijk/console/internal/delivery"
	"github.com/wappzakelijk/console/internal/inbox"
	"github.com/wappzakelijk/console/internal/payment"
	"github.com/wappzakelijk/console/internal/store"
	"github.com/wappzakelijk/console/internal/sync"
	"github.com/wappzakelijk/console/internal/webserver"
	"github.com/wappzakelijk/console/pkg/common"
)

var (
	configFile = flag.String("c", "/etc/wappconsole.yml", "config file")
	showVer    = flag.Bool("v", false, "print version")
	initDb     = flag.Bool("initdb", false, "drop and recreate the database schema")
)

var version = "dev"

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := config.LoadConfig(*configFile)
	common.MustMkdir(cfg.System.Workdir)

	application := app.NewApplication(cfg)
	application.Init(cfg)
	defer application.Release()

	if *initDb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Change feed: always the in-process bus; the AMQP exchange is added
	// when configured so multiple console instances converge.
	bus := sync.NewBusFeed()
	var source sync.EventSource = bus
	var publisher sync.EventPublisher = bus
	if cfg.Messaging.AmqpURL != "" {
		amqpFeed, err := sync.DialAmqpFeed(ctx, cfg.Messaging.AmqpURL, cfg.Messaging.Exchange, 5, time.Second)
		if err != nil {
			zap.L().Error("amqp feed unavailable, running single-instance", zap.Error(err))
		} else {
			defer amqpFeed.Close()
			source = amqpFeed
			publisher = sync.Tee(bus, amqpFeed)
		}
	}

	st := store.NewStore(application.DB(), publisher)

	journal, err := delivery.OpenJournal(cfg.System.Workdir)
	if err != nil {
		zap.L().Fatal("delivery journal open failed", zap.Error(err))
	}
	defer journal.Close()
	gateway := delivery.NewClient(cfg.Messaging.DeliveryURL, journal, st)
	application.ScheduleDeliveryRetry(ctx, gateway, journal)

	inboxSvc := inbox.NewService(cfg.Messaging.CompanyID, st, source, gateway)
	if err := inboxSvc.Start(ctx); err != nil {
		zap.L().Fatal("inbox start failed", zap.Error(err))
	}
	defer inboxSvc.Close()
	application.ScheduleSyncRefresh(ctx, inboxSvc.Refresh)

	poolSize := int(application.GetSettingsInt64Value(app.ConfigMessaging, "broadcast_pool_size"))
	broadcastSvc := broadcast.NewService(cfg.Messaging.CompanyID, st, gateway, poolSize)
	paymentSvc := payment.NewService(cfg.Messaging.PaymentURL, cfg.Messaging.CompanyID, st)

	adminapi.Init(cfg.Messaging.CompanyID, st, inboxSvc, broadcastSvc, paymentSvc)
	web := webserver.Init(cfg, application.DB(), application.CheckAdminPassword)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return web.Listen()
	})
	g.Go(func() error {
		<-ctx.Done()
		return web.Shutdown()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
	zap.L().Info("wappconsole stopped")
}
