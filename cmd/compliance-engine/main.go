// cmd/compliance-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"fleet-compliance/internal/common/aws"
	"fleet-compliance/internal/common/camunda"
	"fleet-compliance/internal/common/config"
	"fleet-compliance/internal/common/database"
	commonhttp "fleet-compliance/internal/common/http"
	"fleet-compliance/internal/common/logger"
	"fleet-compliance/internal/common/observability"
	"fleet-compliance/internal/models"
	"fleet-compliance/internal/repository"

	// Compliance monitoring
	cc "fleet-compliance/internal/workers/compliance/check-compliance"
	es "fleet-compliance/internal/workers/compliance/evaluate-state"
	mr "fleet-compliance/internal/workers/compliance/monitoring-rules"
	ms "fleet-compliance/internal/workers/compliance/monitoring-scheduler"
	re "fleet-compliance/internal/workers/compliance/run-escalation"

	// Number coding and violations
	cnc "fleet-compliance/internal/workers/coding/check-number-coding"
	rcr "fleet-compliance/internal/workers/coding/resolve-coding-rule"
	vl "fleet-compliance/internal/workers/violations/violation-ledger"

	// Integrations
	dn "fleet-compliance/internal/workers/communication/dispatch-notification"
	gg "fleet-compliance/internal/workers/integration/government-gateway"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// workerTimeout prefers an explicit per-worker timeout from config over the package default.
func workerTimeout(cfg *config.Config, taskType string, def time.Duration) time.Duration {
	if w, ok := cfg.Workers[taskType]; ok && w.Timeout > 0 {
		return config.GetDuration(w.Timeout)
	}
	return def
}

func main() {
	zapLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"env":     cfg.App.Environment,
	})

	zapLog.Info("Starting compliance engine...", zap.String("version", cfg.App.Version))

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	if err := pg.Migrate(ctx, repository.Schema); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	if err := esClient.EnsureIndex(ctx, cfg.Database.Elasticsearch.AlertsIndex, repository.AlertsMapping); err != nil {
		zapLog.Fatal("alerts index setup failed", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Stores ---
	records := repository.NewPostgresRecordStore(pg.DB)
	ruleStore := repository.NewPostgresRuleStore(pg.DB)
	violations := repository.NewPostgresViolationStore(pg.DB)
	exemptions := repository.NewPostgresExemptionStore(pg.DB)
	fleet := repository.NewPostgresFleetController(pg.DB)
	codingRules := repository.NewCachedCodingRuleStore(
		repository.NewPostgresCodingRuleStore(pg.DB),
		redis.Client,
		time.Duration(cfg.Coding.RuleCacheTTL)*time.Second,
		log,
	)
	alerts := repository.NewElasticsearchAlertStore(esClient.Client, cfg.Database.Elasticsearch.AlertsIndex)
	reports := repository.NewRedisReportQueue(redis.Client, cfg.Integrations.Reports.QueueKey)
	ruleLock := repository.NewRedisRuleLock(redis.Client, log)

	// --- External services ---
	dispatchCfg := dn.LoadConfig()
	dispatchCfg.EmailEnabled = cfg.Integrations.AWS.SES.Enabled
	dispatchCfg.SMSEnabled = cfg.Integrations.AWS.SNS.Enabled
	dispatchCfg.InAppEnabled = cfg.Integrations.InApp.Enabled
	dispatchCfg.FromEmail = cfg.Integrations.AWS.SES.FromEmail
	dispatchCfg.SMSSenderID = cfg.Integrations.AWS.SNS.DefaultSMSSenderID
	dispatchCfg.Timeout = workerTimeout(cfg, dn.TaskType, dispatchCfg.Timeout)

	var sesSvc dn.SESService
	var snsSvc dn.SNSService
	if dispatchCfg.EmailEnabled || dispatchCfg.SMSEnabled {
		clients, err := aws.NewClients(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws clients failed", zap.Error(err))
		}
		if dispatchCfg.EmailEnabled {
			sesSvc = clients.SES
		}
		if dispatchCfg.SMSEnabled {
			snsSvc = clients.SNS
		}
	}
	dispatcher := dn.NewDispatcher(dispatchCfg, sesSvc, snsSvc,
		dn.NewPostgresInAppStore(pg.DB), dn.NewPostgresRecipientDirectory(pg.DB), log)

	gatewayCfg := gg.ConfigFromAgencies(cfg.Agencies)
	gatewayCfg.Timeout = workerTimeout(cfg, gg.TaskType, gatewayCfg.Timeout)
	gateway := gg.NewGatewayFromConfig(gatewayCfg, repository.NewRedisVerificationCache(redis.Client), log)

	webhooks := commonhttp.NewClient(config.GetDuration(cfg.Integrations.Webhook.Timeout)).
		WithHeader("User-Agent", cfg.App.Name+"/"+cfg.App.Version)

	zapLog.Info("All external service clients initialized", zap.Int("agencies", len(gatewayCfg.Agencies)))

	// --- Domain services ---
	evaluateCfg := es.ConfigFromThresholds(cfg.Compliance.Thresholds)
	evaluateCfg.Timeout = workerTimeout(cfg, es.TaskType, evaluateCfg.Timeout)
	evaluator := es.NewEvaluator(evaluateCfg)

	ruleRegistry := mr.NewRegistry(ruleStore, log)
	if cfg.Compliance.SeedDefaultRule {
		n, err := ruleRegistry.SeedDefaults(ctx)
		if err != nil {
			zapLog.Fatal("seeding default rules failed", zap.Error(err))
		}
		zapLog.Info("default monitoring rules seeded", zap.Int("count", n))
	}
	if path := cfg.Compliance.RuleCatalogPath; path != "" {
		n, err := ruleRegistry.LoadCatalog(ctx, path)
		if err != nil {
			zapLog.Fatal("rule catalogue load failed", zap.String("path", path), zap.Error(err))
		}
		zapLog.Info("rule catalogue loaded", zap.String("path", path), zap.Int("count", n))
	}

	orchestrator := re.NewOrchestrator(re.Dependencies{
		Records:   records,
		Alerts:    alerts,
		Fleet:     fleet,
		Reports:   reports,
		Notifier:  dispatcher,
		API:       webhooks,
		Evaluator: evaluator,
	}, log)

	schedulerCfg, err := ms.ConfigFromScheduler(cfg.Scheduler)
	if err != nil {
		zapLog.Fatal("invalid scheduler config", zap.Error(err))
	}
	schedulerCfg.Timeout = workerTimeout(cfg, ms.TaskType, schedulerCfg.Timeout)
	scheduler := ms.NewScheduler(schedulerCfg, ruleRegistry, orchestrator, ruleLock, obs, log)

	ledgerCfg := vl.ConfigFromDays(cfg.Coding.PaymentTermDays)
	ledgerCfg.Timeout = workerTimeout(cfg, vl.TaskType, ledgerCfg.Timeout)
	ledger := vl.NewLedger(violations, ledgerCfg, log)

	resolverCfg := rcr.LoadConfig()
	resolverCfg.Timeout = workerTimeout(cfg, rcr.TaskType, resolverCfg.Timeout)
	resolver := rcr.NewResolver(codingRules, log)

	detectorCfg := cnc.ConfigFromCoding(cfg.Coding)
	detectorCfg.Timeout = workerTimeout(cfg, cnc.TaskType, detectorCfg.Timeout)
	detector := cnc.NewDetector(detectorCfg, resolver, exemptions, ledger, dispatcher, log)

	checkCfg := cc.ConfigFromCompliance(cfg.Compliance)
	checkCfg.Timeout = workerTimeout(cfg, cc.TaskType, checkCfg.Timeout)
	checkService := cc.NewService(checkCfg, records, alerts, evaluator, gateway, log)

	// --- Scheduler and maintenance jobs ---
	if err := scheduler.Start(ctx); err != nil {
		zapLog.Fatal("scheduler start failed", zap.Error(err))
	}
	zapLog.Info("Monitoring scheduler started", zap.String("spec", schedulerCfg.CronSpec))

	maintenance := cron.New(cron.WithLocation(schedulerCfg.Location))
	if _, err := maintenance.AddFunc("@hourly", func() {
		n, err := ledger.MarkOverdue(ctx, time.Now())
		if err != nil {
			log.Error("overdue sweep failed", map[string]interface{}{"error": err.Error()})
			return
		}
		if n > 0 {
			log.Info("violations marked overdue", map[string]interface{}{"count": n})
		}
	}); err != nil {
		zapLog.Fatal("overdue sweep registration failed", zap.Error(err))
	}
	if _, err := maintenance.AddFunc("@every 1m", func() {
		for agency, health := range gateway.Probe(ctx) {
			if health != models.HealthOperational {
				log.Warn("agency unhealthy", map[string]interface{}{"agency": agency, "health": health})
			}
		}
	}); err != nil {
		zapLog.Fatal("agency probe registration failed", zap.Error(err))
	}
	maintenance.Start()

	// --- Zeebe workers ---
	var zeebe *camunda.Client
	var jobWorkers []worker.JobWorker
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		registryCfg := mr.LoadConfig()
		registryCfg.Timeout = workerTimeout(cfg, mr.TaskType, registryCfg.Timeout)
		escalationCfg := re.LoadConfig()
		escalationCfg.Timeout = workerTimeout(cfg, re.TaskType, escalationCfg.Timeout)
		recordCfg := *checkCfg
		recordCfg.Timeout = workerTimeout(cfg, cc.RecordTaskType, checkCfg.Timeout)

		handlers := map[string]camunda.JobHandler{
			es.TaskType:       es.NewHandler(evaluateCfg, log),
			mr.TaskType:       mr.NewHandler(registryCfg, ruleRegistry, log),
			re.TaskType:       re.NewHandler(escalationCfg, ruleStore, orchestrator, log),
			ms.TaskType:       ms.NewHandler(schedulerCfg, scheduler, log),
			cc.TaskType:       cc.NewHandler(checkCfg, checkService, log),
			cc.RecordTaskType: cc.NewRecordHandler(&recordCfg, checkService, log),
			rcr.TaskType:      rcr.NewHandler(resolverCfg, resolver, log),
			cnc.TaskType:      cnc.NewHandler(detectorCfg, detector, log),
			vl.TaskType:       vl.NewHandler(ledgerCfg, ledger, log),
			dn.TaskType:       dn.NewHandler(dispatchCfg, dispatcher, log),
			gg.TaskType:       gg.NewHandler(gatewayCfg, gateway, log),
		}
		for taskType, handler := range handlers {
			if jw := camunda.StartWorker(zeebe.GetClient(), taskType, config.GetWorkerConfig(cfg, taskType), handler, log); jw != nil {
				jobWorkers = append(jobWorkers, jw)
			}
		}
		zapLog.Info("Workers registered", zap.Int("count", len(jobWorkers)))
	}

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"postgres": "ok", "redis": "ok"}
		status := http.StatusOK
		if err := pg.Ping(r.Context()); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := redis.Ping(r.Context()); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		agencies := make(map[models.Agency]models.HealthStatus, len(gatewayCfg.Agencies))
		for name := range gatewayCfg.Agencies {
			agencies[name] = gateway.HealthStatus(name)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"checks":   checks,
			"agencies": agencies,
			"time":     time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping engine...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	scheduler.Stop()
	<-maintenance.Stop().Done()

	for _, jw := range jobWorkers {
		jw.Close()
		jw.AwaitClose()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}

	zapLog.Info("Compliance engine stopped gracefully")
}
