// Gray Logic Advisor - decision support for home monitoring
//
// The advisor watches live readings over MQTT, compares them against
// baselines built from the time-series history, proposes corrective
// actions and routes them through a human approval channel before
// anything counts as executed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	_ "github.com/nerrad567/gray-logic-advisor/migrations"

	"github.com/nerrad567/gray-logic-advisor/internal/action"
	"github.com/nerrad567/gray-logic-advisor/internal/advisor"
	"github.com/nerrad567/gray-logic-advisor/internal/api"
	"github.com/nerrad567/gray-logic-advisor/internal/approval"
	"github.com/nerrad567/gray-logic-advisor/internal/completion"
	"github.com/nerrad567/gray-logic-advisor/internal/deviation"
	"github.com/nerrad567/gray-logic-advisor/internal/events"
	"github.com/nerrad567/gray-logic-advisor/internal/history"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-advisor/internal/infrastructure/tsdb"
	"github.com/nerrad567/gray-logic-advisor/internal/learning"
	"github.com/nerrad567/gray-logic-advisor/internal/metrics"
	"github.com/nerrad567/gray-logic-advisor/internal/readings"
	"github.com/nerrad567/gray-logic-advisor/internal/report"
	"github.com/nerrad567/gray-logic-advisor/internal/scheduler"
	"github.com/nerrad567/gray-logic-advisor/internal/series"
	"github.com/nerrad567/gray-logic-advisor/internal/store"
	"github.com/nerrad567/gray-logic-advisor/internal/synth"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/advisor.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Advisor",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Document store
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Time-series backends (optional)
	var backends history.Backends
	var sink advisor.Sink

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		backends.Influx = influxClient
		sink = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	var tsdbClient *tsdb.Client
	if cfg.TSDB.Enabled {
		tsdbClient, err = tsdb.Connect(ctx, cfg.TSDB)
		if err != nil {
			return fmt.Errorf("connecting to VictoriaMetrics: %w", err)
		}
		defer tsdbClient.Close() //nolint:errcheck // marks disconnected only
		backends.Victoria = tsdbClient
		log.Info("VictoriaMetrics connected", "url", cfg.TSDB.URL)
	}

	if err := healthCheck(ctx, mqttClient, influxClient, tsdbClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Live readings
	cache := readings.NewCache(cfg.Readings)
	if err := cache.Attach(mqttClient, byte(cfg.MQTT.QoS)); err != nil { // #nosec G115 -- qos validated 0..2
		return fmt.Errorf("subscribing to readings: %w", err)
	}
	log.Info("live readings attached", "metrics", len(cfg.Readings))

	// Actions and learning
	actions := action.NewManager(st, log.Component("actions"))
	if err := actions.Load(ctx); err != nil {
		return err
	}
	learned := learning.New(st, log.Component("learning"))
	if err := learned.Load(ctx); err != nil {
		return err
	}

	dispatcher := action.NewDispatcher(actions, cfg.Advisor.ExecutionMode, log.Component("dispatch"))
	commands := action.NewCommandHandler(mqttClient, cfg.Site.ID)
	for _, c := range action.Categories {
		dispatcher.Register(c, commands)
	}

	// Observers
	promMetrics := metrics.New()
	actions.AddObserver(promMetrics)

	if cfg.Kafka.Enabled {
		ledger := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka), cfg.Site.ID, log.Component("ledger"))
		defer func() {
			if closeErr := ledger.Close(); closeErr != nil {
				log.Error("error closing action ledger", "error", closeErr)
			}
		}()
		actions.AddObserver(ledger)
		log.Info("action ledger enabled", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	// Synthesis
	var completer completion.Completer
	if cfg.Completion.Enabled {
		bedrock, bedrockErr := completion.NewBedrock(ctx, cfg.Completion)
		if bedrockErr != nil {
			log.Warn("completion service unavailable, model suggestions disabled", "error", bedrockErr)
		} else {
			completer = bedrock
			log.Info("completion service enabled", "model", bedrock.ModelID())
		}
	}

	boundary := series.Boundary{DayStartHour: cfg.Advisor.DayStartHour, NightStartHour: cfg.Advisor.NightStartHour}
	synthesizer := synth.New(synth.RuleThresholds{
		LowSOCPercent:        cfg.Advisor.LowSOCPercent,
		FrostTempC:           cfg.Advisor.FrostTempC,
		GridImportThresholdW: cfg.Advisor.GridImportThresholdW,
	}, completer, time.Duration(cfg.Completion.TimeoutSeconds)*time.Second, log.Component("synth"))

	querier := history.NewQuerier(cfg.History, backends, log.Component("history"))
	baseliner := history.NewBaseliner(querier, boundary, loc,
		time.Duration(cfg.History.LookbackDays)*24*time.Hour,
		time.Duration(cfg.History.StepSeconds)*time.Second,
		log.Component("history"),
	)

	renderer, err := report.NewRenderer(cfg.Report.Template, cfg.Site.Name, loc)
	if err != nil {
		return err
	}

	// Approval channel (optional)
	var adapter *approval.Adapter
	var channel *approval.MQTTChannel
	if cfg.Approval.Enabled {
		channel, err = approval.NewMQTTChannel(mqttClient, cfg.Approval.ChatID)
		if err != nil {
			return err
		}
		adapter = approval.NewAdapter(actions, dispatcher, learned, cache, channel, log.Component("approval"))
	}

	deps := advisor.Deps{
		Site:         cfg.Site.ID,
		Location:     loc,
		Store:        st,
		Live:         cache,
		Baselines:    baseliner,
		Detector:     deviation.NewDetector(deviation.Thresholds{PeakFactor: cfg.Advisor.PeakFactor, BatteryDropPoints: cfg.Advisor.BatteryDropPoints}, boundary, loc),
		Synth:        synthesizer,
		Actions:      actions,
		Dispatcher:   dispatcher,
		Learning:     learned,
		Approval:     adapter,
		Renderer:     renderer,
		Sink:         sink,
		Metrics:      promMetrics,
		MQTT:         mqttClient,
		RunFlagTopic: cfg.MQTT.Topics.RunFlag,
		Logger:       log.Component("advisor"),
	}
	if channel != nil {
		deps.Channel = channel
	}
	adv := advisor.New(deps)

	if err := adv.ListenRunFlag(ctx); err != nil {
		return fmt.Errorf("subscribing to run flag: %w", err)
	}
	if channel != nil {
		if err := adv.ListenApproval(ctx, channel); err != nil {
			return fmt.Errorf("subscribing to approval replies: %w", err)
		}
	}

	health := advisor.NewHealthReporter(adv, mqttClient, version, advisor.DefaultHealthInterval)
	health.Start(ctx)
	defer health.Stop()

	// HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log.Component("api"),
		Runner:   adv,
		Actions:  actions,
		Learning: learned,
		Metrics:  promMetrics.Handler(),
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	actions.AddObserver(server.Hub())
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Schedules
	interval := time.Duration(cfg.Advisor.IntervalMinutes) * time.Minute
	go adv.RunPeriodic(ctx, interval)
	adv.Start(ctx, "startup")

	if cfg.Report.Enabled {
		at, clockErr := scheduler.ParseClock(cfg.Report.Time)
		if clockErr != nil {
			return clockErr
		}
		daily := scheduler.NewDaily(at, loc, st, adv.SendReport, log.Component("report"))
		go daily.Run(ctx)
		log.Info("daily report scheduled", "time", at.String(), "next", daily.Next())
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"interval", interval.String(),
		"execution_mode", cfg.Advisor.ExecutionMode,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	actions.Persist(context.Background())
	log.Info("Gray Logic Advisor stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_ADVISOR_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_ADVISOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openStore opens the configured document store and returns its closer.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		r, err := store.ConnectRedis(ctx, cfg.Store.Redis)
		if err != nil {
			return nil, nil, err
		}
		log.Info("redis store connected", "addr", cfg.Store.Redis.Addr)
		return r, func() {
			if err := r.Close(); err != nil {
				log.Error("error closing redis", "error", err)
			}
		}, nil

	default:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("sqlite store ready", "path", cfg.Database.Path)
		return store.NewSQLite(db), func() {
			log.Info("closing database")
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}, nil
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// The time-series clients may be nil when disabled.
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client, tsdbClient *tsdb.Client) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if tsdbClient != nil {
		if err := tsdbClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("victoriametrics: %w", err)
		}
	}
	return nil
}
