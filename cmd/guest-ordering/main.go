package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"guest-ordering/internal/aggregator"
	"guest-ordering/internal/app/guest"
	"guest-ordering/internal/common/config"
	"guest-ordering/internal/common/db"
	"guest-ordering/internal/common/httpx"
	"guest-ordering/internal/common/logger"
	"guest-ordering/internal/common/mq"
	"guest-ordering/internal/domain"
	"guest-ordering/internal/hotelapi"
	"guest-ordering/internal/realtime"
	"guest-ordering/internal/session"
	"guest-ordering/internal/statusclock"
)

func main() {
	mode := flag.String("mode", "session", "session | track")
	cfgPath := flag.String("config", "", "path to YAML config (default: config.yaml or deploy/config.example.yaml)")
	orderID := flag.String("order", "", "track: order id to follow")
	port := flag.Int("port", 0, "session: http port, overrides config")
	flag.Parse()

	lg := logger.New("bootstrap")
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		lg.Error("config_load_failed", err, nil)
		os.Exit(2)
	}
	lg.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "session":
		lg.Info("service_started", map[string]any{"service": "guest-session", "port": cfg.HTTP.Port,
			"session_backend": cfg.Session.Backend, "transport": cfg.Realtime.Transport})
		if err := runSession(ctx, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "track":
		if *orderID == "" {
			fmt.Fprintln(os.Stderr, "--order is required for track")
			os.Exit(2)
		}
		if err := runTrack(ctx, cfg, *orderID); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode must be one of: session | track")
		os.Exit(2)
	}
}

func loadConfig(path string) (config.App, error) {
	if path == "" {
		found, err := config.FindConfig()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.App{}, err
		}
		path = found
	}
	return config.Load(path)
}

func runSession(ctx context.Context, cfg config.App) error {
	if cfg.Session.ID == "" {
		cfg.Session.ID = uuid.NewString()
	}
	lg := logger.New("guest-session").
		SetLevel(logger.ParseLevel(cfg.Log.Level)).
		With(map[string]any{"session_id": cfg.Session.ID})

	store, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	ident := store.Identity(ctx)
	ch := realtime.NewChannel(newTransport(cfg, lg), ident, lg.With(map[string]any{"component": "realtime"}))
	conn := realtime.NewConn(ch)

	hotel := hotelapi.New(cfg.HotelAPI.BaseURL, cfg.HotelAPI.Timeout, lg.With(map[string]any{"component": "hotelapi"}))
	clock := statusclock.New(store, durations(cfg.StatusClock), lg.With(map[string]any{"component": "status_clock"}))
	agg := aggregator.New(store, ch, ident, lg.With(map[string]any{"component": "aggregator"}),
		aggregator.WithTracker(clock),
		aggregator.WithPlacer(hotel))
	agg.Load(ctx)
	clock.ResumeStored(ctx, orderIDs(agg))
	ch.OnEvent(func(ev domain.OrderEvent) { agg.Apply(context.Background(), ev) })

	if cfg.HotelAPI.ReportStatus {
		clock.OnAdvance(func(rec domain.StatusRecord) {
			if err := hotel.UpdateStatus(context.Background(), rec.OrderID, rec.Status); err != nil {
				lg.Error("status_report_failed", err, map[string]any{"order_id": rec.OrderID, "status": rec.Status})
			}
		})
	}

	if _, err := conn.Acquire(ctx); err != nil {
		return err
	}
	defer conn.Release()

	sched, err := statusclock.NewScheduler(clock, cfg.StatusClock.Tick, lg)
	if err != nil {
		return err
	}

	h := guest.New(guest.Deps{
		Store:    store,
		Orders:   agg,
		Tracking: clock,
		Menu:     hotel,
		Realtime: conn,
		Log:      lg.With(map[string]any{"component": "http"}),
	})
	srv := httpx.New(":"+strconv.Itoa(cfg.HTTP.Port), guest.Router(h))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	err = g.Wait()
	lg.Info("service_stopped", nil)
	return err
}

// runTrack prints the tracking view of one stored order every tick until it
// is delivered.
func runTrack(ctx context.Context, cfg config.App, orderID string) error {
	if cfg.Session.ID == "" {
		return errors.New("track needs session.id (or GUEST_SESSION_ID) of the session that owns the order")
	}
	lg := logger.New("guest-track").
		SetLevel(logger.ParseLevel(cfg.Log.Level)).
		With(map[string]any{"session_id": cfg.Session.ID, "order_id": orderID})

	store, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	clock := statusclock.New(store, durations(cfg.StatusClock), lg)
	clock.ResumeStored(ctx, []string{orderID})
	if _, ok := clock.View(orderID); !ok {
		return fmt.Errorf("no status record for order %s", orderID)
	}

	enc := json.NewEncoder(os.Stdout)
	t := time.NewTicker(cfg.StatusClock.Tick)
	defer t.Stop()
	for {
		v, _ := clock.View(orderID)
		_ = enc.Encode(v)
		if v.Status.Terminal() {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			clock.Tick(ctx)
		}
	}
}

func openStore(ctx context.Context, cfg config.App, lg *logger.Logger) (*session.Store, func(), error) {
	var (
		backend session.Backend
		closer  = func() {}
	)
	switch cfg.Session.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		lg.Info("redis_connected", map[string]any{"addr": cfg.Redis.Addr})
		backend = session.NewRedisBackend(rdb, cfg.Session.ID, cfg.Session.TTL)
		closer = func() { _ = rdb.Close() }
	case "postgres":
		conn, err := db.Connect(ctx, db.Options{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Pass:     cfg.Database.Pass,
			Name:     cfg.Database.Name,
			MaxConns: cfg.Database.MaxConns,
		})
		if err != nil {
			return nil, nil, err
		}
		pg := session.NewPostgresBackend(conn, cfg.Session.ID)
		if err := pg.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}
		lg.Info("db_connected", map[string]any{"host": cfg.Database.Host, "database": cfg.Database.Name})
		backend = pg
		closer = conn.Close
	default:
		backend = session.NewMemoryBackend()
	}
	return session.NewStore(backend, lg.With(map[string]any{"component": "session"})), closer, nil
}

func newTransport(cfg config.App, lg *logger.Logger) realtime.Transport {
	rt := cfg.Realtime
	if rt.Transport == "amqp" {
		return realtime.NewAMQPTransport(mq.Options{
			Host:  rt.Rabbit.Host,
			Port:  rt.Rabbit.Port,
			User:  rt.Rabbit.User,
			Pass:  rt.Rabbit.Pass,
			VHost: rt.Rabbit.VHost,
		}, rt.Reconnect, lg)
	}
	return realtime.NewNATSTransport(rt.NATSURL, rt.Reconnect, lg)
}

func durations(c config.StatusClock) statusclock.Durations {
	return statusclock.Durations{
		domain.StatusConfirmed:      c.Confirmed,
		domain.StatusPreparing:      c.Preparing,
		domain.StatusOutForDelivery: c.OutForDelivery,
		domain.StatusDelivered:      0,
	}
}

func orderIDs(agg *aggregator.Aggregator) []string {
	var ids []string
	if o, ok := agg.Active(); ok {
		ids = append(ids, o.ID)
	}
	for _, o := range agg.Closed() {
		ids = append(ids, o.ID)
	}
	return ids
}
