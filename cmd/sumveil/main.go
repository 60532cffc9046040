package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sumveil/sumveil/internal/anonymize"
	"github.com/sumveil/sumveil/internal/audit"
	"github.com/sumveil/sumveil/internal/config"
	"github.com/sumveil/sumveil/internal/job"
	"github.com/sumveil/sumveil/internal/mockupstream"
	"github.com/sumveil/sumveil/internal/provider"
	"github.com/sumveil/sumveil/internal/recognize"
	"github.com/sumveil/sumveil/internal/server"
	"github.com/sumveil/sumveil/internal/store"
	"github.com/sumveil/sumveil/internal/telemetry"
	"github.com/sumveil/sumveil/internal/version"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "sumveil.yaml", "path to config file")
	mockUpstream := flag.Bool("mock-upstream", false, "start a local mock LLM and route requests to it")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *mockUpstream {
		shutdownMock, baseURL, err := mockupstream.Start("")
		if err != nil {
			log.Fatalf("start mock upstream: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = shutdownMock(shutdownCtx)
		}()
		cfg.Provider.BaseURL = baseURL + "/v1"
		log.Printf("routing upstream requests to mock at %s", cfg.Provider.BaseURL)
	}

	recognizer, cleanup, err := buildRecognizer(cfg)
	if err != nil {
		log.Fatalf("build recognizer: %v", err)
	}
	defer cleanup()

	st, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("build store: %v", err)
	}
	defer st.Close()

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  cfg.Telemetry.Service,
		Version:  version.Version,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer tel.Shutdown(context.Background())

	emitter, err := buildAuditEmitter(cfg)
	if err != nil {
		log.Fatalf("build audit emitter: %v", err)
	}
	defer emitter.Close(context.Background())

	apiKey := strings.TrimSpace(os.Getenv(cfg.Provider.APIKeyEnv))
	prov := provider.NewOpenAI(
		cfg.Provider.BaseURL,
		apiKey,
		cfg.Provider.Model,
		float64(cfg.Provider.Temperature),
		cfg.Jobs.Timeout,
		cfg.Provider.MaxResponseBytes,
	)

	auditLevel := cfg.Audit.Level
	dispatcher := job.NewDispatcher(st, prov, anonymize.New(recognizer), job.Options{
		Workers:        cfg.Jobs.Workers,
		QueueSize:      cfg.Jobs.QueueSize,
		Timeout:        cfg.Jobs.Timeout,
		ScoringEnabled: cfg.ScoringEnabled(),
		OnFinish: func(o job.Outcome) {
			tel.RecordJob(o)
			emitter.Emit(audit.BuildEvent(auditLevel, o))
		},
	})
	defer dispatcher.Close()
	tel.ObserveQueueDepth(func() int64 { return int64(dispatcher.QueueDepth()) })

	srv := server.New(cfg, dispatcher, st)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}

func buildRecognizer(cfg *config.Config) (recognize.Engine, func(), error) {
	noop := func() {}
	switch cfg.Recognizer.Mode {
	case "off":
		log.Printf("recognition disabled; queries pass through unredacted")
		return recognize.NewNoop(), noop, nil
	case "onnx":
		eng, err := recognize.NewONNX(cfg.Recognizer.BundleDir, cfg.Recognizer.SeqLen)
		if err != nil {
			return nil, nil, err
		}
		return eng, eng.Destroy, nil
	default:
		return recognize.NewRegex(cfg.Recognizer.Entities), noop, nil
	}
}

func buildStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Driver == "sqlite" {
		return store.NewSQLite(cfg.Store.DSN, cfg.Store.TTL)
	}
	return store.NewMemory(cfg.Store.TTL), nil
}

func buildAuditEmitter(cfg *config.Config) (*audit.Emitter, error) {
	var sinks []audit.Sink
	if cfg.Audit.Level != audit.LevelOff {
		if cfg.Audit.File != "" {
			sink, err := audit.NewFileSink(cfg.Audit.File)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink)
		}
		if cfg.Audit.Webhook.URL != "" {
			sink, err := audit.NewWebhookSink(cfg.Audit.Webhook.URL, cfg.Audit.Webhook.Headers, cfg.Audit.Webhook.Timeout)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, sink)
		}
	}
	return audit.NewEmitter(audit.EmitterConfig{
		QueueSize: cfg.Audit.QueueSize,
		Workers:   cfg.Audit.Workers,
	}, sinks), nil
}
