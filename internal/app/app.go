package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/taskrank/internal/aggregate"
	"github.com/hitoshi/taskrank/internal/challenge"
	"github.com/hitoshi/taskrank/internal/config"
	"github.com/hitoshi/taskrank/internal/database"
	"github.com/hitoshi/taskrank/internal/handler"
	"github.com/hitoshi/taskrank/internal/leaderboard"
	"github.com/hitoshi/taskrank/internal/ledger"
	"github.com/hitoshi/taskrank/internal/logger"
	"github.com/hitoshi/taskrank/internal/metrics"
	"github.com/hitoshi/taskrank/internal/middleware"
	"github.com/hitoshi/taskrank/internal/model"
	"github.com/hitoshi/taskrank/internal/repository"
	"github.com/hitoshi/taskrank/internal/worker/reconcile"
	"github.com/hitoshi/taskrank/internal/worker/tick"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envファイルを読み込む（存在しなければ何もしない）
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store", string(cfg.StoreDriver)),
		slog.String("port", cfg.ServerPort),
		slog.String("timezone", cfg.Location.String()),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stores は永続化層の実装一式。
type stores struct {
	aggregates  repository.AggregateRepository
	ledger      repository.LedgerRepository
	challenges  repository.ChallengeRepository
	progress    repository.ProgressRepository
	groupScores repository.GroupScoreRepository
	contacts    repository.ContactRepository

	// db はPostgreSQL使用時のみ設定される。
	db *sql.DB
}

// Close はDB接続を閉じる。インメモリストアでは何もしない。
func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// healthChecker はDB接続がある場合のみヘルスチェック対象を返す。
func (s *stores) healthChecker() handler.HealthChecker {
	if s.db == nil {
		return nil
	}
	return s.db
}

// openStores はSTORE_DRIVERに応じて永続化層を構築する。
func openStores(cfg *config.Config) (*stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		mem := repository.NewMemoryStore()
		slog.Warn("using in-memory store; data will be lost on restart")
		return &stores{
			aggregates:  mem.Aggregates,
			ledger:      mem.Ledger,
			challenges:  mem.Challenges,
			progress:    mem.Progress,
			groupScores: mem.GroupScores,
			contacts:    mem.Contacts,
		}, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	return &stores{
		aggregates:  repository.NewPostgresAggregateRepo(db),
		ledger:      repository.NewPostgresLedgerRepo(db),
		challenges:  repository.NewPostgresChallengeRepo(db),
		progress:    repository.NewPostgresProgressRepo(db),
		groupScores: repository.NewPostgresGroupScoreRepo(db),
		contacts:    repository.NewPostgresContactRepo(db),
		db:          db,
	}, nil
}

// components はワイヤリング済みのサービス群。
type components struct {
	registry    *prometheus.Registry
	collector   *metrics.Collector
	ledger      *ledger.Service
	manager     *challenge.Manager
	recorder    *aggregate.Recorder
	leaderboard *leaderboard.Service
	scheduler   *tick.Scheduler
}

// buildComponents はストアの上にドメインサービスを組み立てる。
func buildComponents(cfg *config.Config, st *stores, clock model.Clock) *components {
	log := slog.Default()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	goals := map[model.ChallengeKind]challenge.Goals{
		model.ChallengeWeekly:  {Points: cfg.WeeklyGoalPoints, Tasks: cfg.WeeklyGoalTasks},
		model.ChallengeMonthly: {Points: cfg.MonthlyGoalPoints, Tasks: cfg.MonthlyGoalTasks},
	}

	ledgerSvc := ledger.NewService(st.ledger)
	manager := challenge.NewManager(st.challenges, st.progress, ledgerSvc, clock, cfg.Location, goals, collector, log)
	recorder := aggregate.NewRecorder(st.aggregates, ledgerSvc, manager, clock, cfg.Location, cfg.RecordMaxRetries, collector, log)

	return &components{
		registry:    reg,
		collector:   collector,
		ledger:      ledgerSvc,
		manager:     manager,
		recorder:    recorder,
		leaderboard: leaderboard.NewService(st.aggregates, st.groupScores, st.contacts),
		scheduler:   tick.NewScheduler(manager, clock, log),
	}
}

// newRouter はAPIルーターを構築する。返されたRateLimiterは呼び出し側で停止する。
func newRouter(cfg *config.Config, st *stores, c *components, clock model.Clock) (http.Handler, *middleware.RateLimiter) {
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitCompletion))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		UserIDHeader:       cfg.UserIDHeader,
		CORSAllowedOrigin:  cfg.CORSAllowedOrigin,
		RateLimiter:        rl,
		StatusObserver:     c.collector,
		HealthChecker:      st.healthChecker(),
		MetricsHandler:     metrics.SetupMetricsRoute(c.registry),
		CompletionService:  c.recorder,
		PointsService:      c.ledger,
		LeaderboardService: c.leaderboard,
		ChallengeService:   handler.NewChallengeServiceAdapter(c.manager),
		PointsHandlerOpts:  handler.PointsHandlerOptions{Clock: clock, Location: cfg.Location},
	})
	return router, rl
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	clock := model.SystemClock{}
	c := buildComponents(cfg, st, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 起動時点で当期のチャレンジが存在するようにする
	if err := c.scheduler.RunOnce(ctx); err != nil {
		slog.Error("initial challenge tick failed", slog.String("error", err.Error()))
	}
	// インメモリストアはworkerプロセスと共有できないため、サーバー内でスケジューラを動かす
	if cfg.StoreDriver == config.StoreMemory {
		go c.scheduler.Start(ctx, cfg.ChallengeTickInterval)
	}

	router, rl := newRouter(cfg, st, c, clock)
	defer rl.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// チャレンジのTickスケジューラと進捗の再計算ジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreMemory {
		return fmt.Errorf("worker requires STORE_DRIVER=%s", config.StorePostgres)
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	c := buildComponents(cfg, st, model.SystemClock{})
	job := reconcile.NewJob(c.manager, slog.Default(), cfg.ReconcileMaxConcurrent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("tick_interval", cfg.ChallengeTickInterval),
		slog.Duration("reconcile_interval", cfg.ReconcileInterval),
		slog.Int("max_concurrent", cfg.ReconcileMaxConcurrent),
	)

	// 再計算ジョブをバックグラウンドで起動
	go job.Start(ctx, cfg.ReconcileInterval)

	// Tickスケジューラをメインgoroutineで実行（ブロッキング）
	c.scheduler.Start(ctx, cfg.ChallengeTickInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreMemory {
		slog.Info("in-memory store selected; no migrations to run")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
