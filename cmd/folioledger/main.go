package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"FolioLedger/internal/config"
	"FolioLedger/internal/core"
	"FolioLedger/internal/fund"
	"FolioLedger/internal/ingestion"
	"FolioLedger/internal/observability"
	"FolioLedger/internal/persistence"
	"FolioLedger/internal/projection"
	"FolioLedger/internal/query"
	"FolioLedger/internal/server"
)

func main() {
	log := observability.NewLogger("folioledger")
	log.Info().Msg("FolioLedger starting")

	cfg, err := config.Load(os.Getenv("FOLIO_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	defaults, err := buildFundDefaults(cfg.Fund)
	if err != nil {
		log.Fatal().Err(err).Msg("fund defaults")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir, log)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	snapMgr := persistence.NewSnapshotManager(db)

	// --- Recovery: load snapshot + replay ---
	startSequence := int64(0)
	var coreSnap *core.Snapshot

	stored, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("load snapshot failed")
	}
	if stored != nil {
		coreSnap = &core.Snapshot{}
		if err := json.Unmarshal(stored.Data, coreSnap); err != nil {
			log.Fatal().Err(err).Msg("decode snapshot")
		}
		startSequence = coreSnap.Sequence
		log.Info().Int64("sequence", coreSnap.Sequence).Msg("loaded snapshot")
	} else {
		log.Info().Msg("no snapshot found, cold start from sequence 0")
	}

	// --- Channels ---
	// Persist channel blocks (backpressure); projection channel drops.
	persistCoreChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionCoreChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)
	persistWorkerChan := make(chan persistence.CoreOutput, cfg.PersistChanSize)
	projectionWorkerChan := make(chan projection.ProjectionOutput, cfg.ProjectionChanSize)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	metrics := observability.NewMetrics()
	metrics.SetChannelMetrics("persist", 0, cfg.PersistChanSize)
	metrics.SetChannelMetrics("projection", 0, cfg.ProjectionChanSize)
	healthChecker := observability.NewHealthChecker()

	// --- Deterministic core ---
	folioCore := core.NewFolioCore(
		startSequence,
		defaults,
		cfg.EngineID,
		persistCoreChan,
		projectionCoreChan,
		dbChecker,
		metrics,
	)

	if coreSnap != nil {
		if err := folioCore.RestoreFromSnapshot(coreSnap); err != nil {
			log.Fatal().Err(err).Msg("restore snapshot")
		}
	}

	// --- Event replay from snapshot.sequence+1 to head ---
	replayCount, err := replayCommands(ctx, snapMgr, folioCore, folioCore.Sequence(), metrics, log)
	if err != nil {
		log.Fatal().Err(err).Msg("event replay failed")
	}
	if replayCount > 0 {
		log.Info().Int64("replayed", replayCount).Int64("sequence", folioCore.Sequence()).
			Msg("replay complete")
	}

	// Verify the restored hash when nothing was replayed on top.
	if coreSnap != nil && replayCount == 0 {
		actual := folioCore.StateHash()
		if !bytes.Equal(coreSnap.StateHash, actual[:]) {
			log.Fatal().
				Hex("expected", coreSnap.StateHash).
				Hex("actual", actual[:]).
				Msg("state hash mismatch after restore")
		}
		log.Info().Msg("state hash verified after snapshot restore")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure command stream")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure outbound stream")
	}

	rawCommandChan := make(chan ingestion.RawCommand, 4096)
	natsSubscriber := ingestion.NewNATSSubscriber(js, rawCommandChan, log)
	if err := natsSubscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}

	publishChan := make(chan ingestion.PublishableEvent, 4096)
	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan, log)

	// --- Services ---
	queryService := query.NewQueryService(db)
	httpServer := server.NewHTTPServer(cfg.HTTPAddr, &server.Deps{
		DB:            db,
		QueryService:  queryService,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		StartTime:     time.Now(),
	}, log)

	errChan := make(chan error, 10)

	persistWorker := persistence.NewPersistenceWorker(
		db, persistWorkerChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics, log)
	go func() { errChan <- persistWorker.Run(ctx) }()

	projWorker := projection.NewProjectionWorker(db, projectionWorkerChan, metrics, log)
	go func() { errChan <- projWorker.Run(ctx) }()

	go func() { errChan <- outboundPublisher.Run(ctx) }()

	go bridgeCoreOutputs(ctx, persistCoreChan, projectionCoreChan,
		persistWorkerChan, projectionWorkerChan, publishChan, metrics)

	go runIngestionLoop(ctx, rawCommandChan, folioCore, metrics, log)

	go func() { errChan <- httpServer.Start(ctx) }()

	go runPeriodicSnapshots(ctx, folioCore, snapMgr, cfg.SnapshotInterval, metrics, log)

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	log.Info().
		Int64("sequence", folioCore.Sequence()).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("FolioLedger ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	cancel()
	natsSubscriber.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	close(persistWorkerChan)
	close(projectionWorkerChan)
	close(publishChan)

	if err := takeSnapshot(shutdownCtx, folioCore, snapMgr, metrics); err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Msg("final snapshot saved")
	}

	log.Info().Msg("FolioLedger shutdown complete")
}

// buildFundDefaults parses the configured D18 strings into the core's
// fund configuration.
func buildFundDefaults(fd config.FundDefaults) (fund.Config, error) {
	parse := func(name, s string) (*big.Int, error) {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("parse %s: %q", name, s)
		}
		return v, nil
	}

	feeNumerator, err := parse("fee_numerator", fd.FeeNumerator)
	if err != nil {
		return fund.Config{}, err
	}
	feeFloor, err := parse("fee_floor", fd.FeeFloor)
	if err != nil {
		return fund.Config{}, err
	}
	daoShare, err := parse("dao_share", fd.DAOShare)
	if err != nil {
		return fund.Config{}, err
	}
	mintFee, err := parse("mint_fee", fd.MintFee)
	if err != nil {
		return fund.Config{}, err
	}
	daoReceiver, err := uuid.Parse(fd.DAOReceiver)
	if err != nil {
		return fund.Config{}, fmt.Errorf("parse dao_receiver: %w", err)
	}

	out := fund.Config{
		FeeNumerator:  feeNumerator,
		FeeFloor:      feeFloor,
		DAOShare:      daoShare,
		MintFee:       mintFee,
		DAOReceiver:   daoReceiver,
		AuctionLength: fd.AuctionLength,
	}
	if err := out.Validate(); err != nil {
		return fund.Config{}, err
	}
	return out, nil
}

// bridgeCoreOutputs converts core.CoreOutput into persistence rows,
// projection outputs, and outbound publishes. Bridging here keeps core
// decoupled from persistence and projection.
func bridgeCoreOutputs(
	ctx context.Context,
	persistIn <-chan core.CoreOutput,
	projectionIn <-chan core.CoreOutput,
	persistOut chan<- persistence.CoreOutput,
	projectionOut chan<- projection.ProjectionOutput,
	publishOut chan<- ingestion.PublishableEvent,
	metrics *observability.Metrics,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case output, ok := <-persistIn:
			if !ok {
				return
			}

			env := output.Envelope
			pOutput := persistence.CoreOutput{
				EventRow: persistence.EventRow{
					Sequence:       env.Sequence,
					CommandType:    env.CommandType.String(),
					IdempotencyKey: env.IdempotencyKey,
					FundID:         env.FundID,
					Payload:        env.Payload,
					StateHash:      env.StateHash[:],
					PrevHash:       env.PrevHash[:],
					At:             env.At,
					SourceSequence: env.SourceSequence,
				},
			}
			for i, n := range output.Notices {
				payload, err := json.Marshal(n)
				if err != nil {
					continue
				}
				pOutput.NoticeRows = append(pOutput.NoticeRows, persistence.NoticeRow{
					Sequence:   env.Sequence,
					NoticeIdx:  i,
					NoticeType: n.NoticeType(),
					FundID:     env.FundID,
					Payload:    payload,
					At:         env.At,
				})
			}

			persistOut <- pOutput

			for _, n := range output.Notices {
				select {
				case publishOut <- ingestion.PublishableEvent{
					Sequence:       env.Sequence,
					NoticeType:     n.NoticeType(),
					IdempotencyKey: env.IdempotencyKey,
					FundID:         env.FundID,
					Payload:        n,
					StateHash:      env.StateHash[:],
					Timestamp:      time.Unix(env.At, 0).UTC(),
				}:
				default:
					if metrics != nil {
						metrics.PublishDrops.Inc()
					}
				}
			}

		case output, ok := <-projectionIn:
			if !ok {
				return
			}

			env := output.Envelope
			for _, n := range output.Notices {
				payload, err := json.Marshal(n)
				if err != nil {
					continue
				}
				select {
				case projectionOut <- projection.ProjectionOutput{
					Sequence:   env.Sequence,
					NoticeType: n.NoticeType(),
					FundID:     env.FundID,
					Payload:    payload,
					At:         env.At,
				}:
				default:
					if metrics != nil {
						metrics.ProjectionDrops.WithLabelValues(n.NoticeType()).Inc()
					}
				}
			}
		}
	}
}

// runIngestionLoop parses raw NATS commands and feeds the core. Invalid
// payloads are acked so they do not loop through redelivery; the ack
// for valid commands happens after the core accepts or dedups them,
// propagating backpressure to JetStream.
func runIngestionLoop(
	ctx context.Context,
	rawChan <-chan ingestion.RawCommand,
	folioCore *core.FolioCore,
	metrics *observability.Metrics,
	log zerolog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-rawChan:
			if !ok {
				return
			}

			cmd, err := ingestion.ParseRawCommand(raw)
			if err != nil {
				log.Warn().Str("subject", raw.Subject).Err(err).Msg("parse command failed")
				raw.AckFunc()
				continue
			}

			if err := folioCore.ProcessCommand(cmd, raw.Data); err != nil {
				// Duplicates and sequence rejections are normal outcomes;
				// the command is consumed either way.
				log.Debug().Str("subject", raw.Subject).
					Str("key", cmd.IdempotencyKey()).Err(err).
					Msg("command rejected")
			}
			if metrics != nil {
				metrics.IngestToApply.WithLabelValues(cmd.CommandType().String()).
					Observe(time.Since(raw.ReceivedAt).Seconds())
			}
			raw.AckFunc()
		}
	}
}

// replayCommands reparses logged payloads through the live wire path
// from fromSequence to the log head.
func replayCommands(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	folioCore *core.FolioCore,
	fromSequence int64,
	metrics *observability.Metrics,
	log zerolog.Logger,
) (int64, error) {
	const batchSize = 1000
	var totalReplayed int64

	for {
		events, err := snapMgr.LoadEventsFrom(ctx, fromSequence, batchSize)
		if err != nil {
			return totalReplayed, fmt.Errorf("load events from seq %d: %w", fromSequence, err)
		}
		if len(events) == 0 {
			break
		}

		for _, row := range events {
			subject := ingestion.SubjectForCommandType(row.CommandType)
			if subject == "" {
				log.Warn().Int64("sequence", row.Sequence).
					Str("command_type", row.CommandType).
					Msg("skip unknown command type during replay")
				continue
			}

			cmd, err := ingestion.ParseRawCommand(ingestion.RawCommand{
				Subject: subject,
				Data:    row.Payload,
			})
			if err != nil {
				log.Warn().Int64("sequence", row.Sequence).Err(err).
					Msg("skip unparseable command during replay")
				continue
			}

			if err := folioCore.ProcessCommand(cmd, row.Payload); err != nil {
				// Duplicates are expected when the snapshot overlaps the log.
				log.Debug().Int64("sequence", row.Sequence).Err(err).Msg("replay skip")
			}

			totalReplayed++
			if metrics != nil {
				metrics.ReplayEventsTotal.Inc()
			}
		}

		fromSequence = events[len(events)-1].Sequence + 1
	}

	return totalReplayed, nil
}

// runPeriodicSnapshots takes a snapshot every interval events.
func runPeriodicSnapshots(
	ctx context.Context,
	folioCore *core.FolioCore,
	snapMgr *persistence.SnapshotManager,
	interval int64,
	metrics *observability.Metrics,
	log zerolog.Logger,
) {
	if interval <= 0 {
		interval = 100_000
	}

	lastSnapshotSeq := folioCore.Sequence()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			currentSeq := folioCore.Sequence()
			if currentSeq-lastSnapshotSeq >= interval {
				if err := takeSnapshot(ctx, folioCore, snapMgr, metrics); err != nil {
					log.Warn().Err(err).Msg("periodic snapshot failed")
					continue
				}
				lastSnapshotSeq = currentSeq
				log.Info().Int64("sequence", currentSeq).Msg("periodic snapshot")
			}
		}
	}
}

// takeSnapshot captures the core's in-memory state and persists it.
func takeSnapshot(
	ctx context.Context,
	folioCore *core.FolioCore,
	snapMgr *persistence.SnapshotManager,
	metrics *observability.Metrics,
) error {
	start := time.Now()

	snap := folioCore.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := snapMgr.SaveSnapshot(ctx, snap.Sequence, snap.StateHash, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	// Snapshots of live state are verified by construction.
	if err := snapMgr.MarkVerified(ctx, snap.Sequence); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}

	if metrics != nil {
		metrics.SnapshotTaken.Inc()
		metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}
