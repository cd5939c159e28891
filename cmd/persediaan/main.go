package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atkgudang/persediaan/internal/api"
	"github.com/atkgudang/persediaan/internal/auth"
	"github.com/atkgudang/persediaan/internal/config"
	"github.com/atkgudang/persediaan/internal/db"
	"github.com/atkgudang/persediaan/internal/lock"
	"github.com/atkgudang/persediaan/internal/model"
	"github.com/atkgudang/persediaan/internal/store"
	"github.com/atkgudang/persediaan/internal/workflow"
)

func main() {
	cfg := config.Load()

	fs := flag.NewFlagSet("persediaan", flag.ContinueOnError)

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "")

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "")
	fs.StringVar(&cfg.Addr, "a", cfg.Addr, "")

	fs.StringVar(&cfg.AdminUser, "user", cfg.AdminUser, "")
	fs.StringVar(&cfg.AdminUser, "u", cfg.AdminUser, "")

	fs.StringVar(&cfg.LogPath, "log", cfg.LogPath, "")
	fs.StringVar(&cfg.LogPath, "l", cfg.LogPath, "")

	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "")
	fs.DurationVar(&cfg.LockTTL, "lock-ttl", cfg.LockTTL, "")

	fs.Usage = func() {
		fmt.Fprint(os.Stdout, `Usage: persediaan [flags]

Flags:
  -d, -db <path>          SQLite database path (env PERSEDIAAN_DB, default: persediaan.sqlite3)
  -a, -addr <host:port>   listen address (env PERSEDIAAN_ADDR, default: :8080)
  -u, -user <name>        admin username on first run (env PERSEDIAAN_ADMIN_USER, default: Admin)
  -l, -log <path>         also write JSON logs to this file (env PERSEDIAAN_LOG)
  -redis <host:port>      hold stock locks in Redis (env PERSEDIAAN_REDIS_ADDR, default: in process)
  -lock-ttl <duration>    Redis lock expiry (env PERSEDIAAN_LOCK_TTL, default: 30s)
  -h, -help               show this help and exit

A .env file in the working directory is read before the environment.
`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	closeLog, err := setupLogger(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg); err != nil {
		slog.Error("fatal", "error", err)
		closeLog()
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx := context.Background()

	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		password, err := initDatabase(cfg.DBPath, cfg.AdminUser)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		printInitResult(cfg.DBPath, cfg.AdminUser, password)
		fmt.Println()
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	if err := db.EnsureSchema(database); err != nil {
		return fmt.Errorf("ensuring database schema: %w", err)
	}
	slog.Info("database ready", "path", cfg.DBPath)

	jwtSecret, err := store.GetJWTSecret(ctx, database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	locks, closeLocks, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocks()

	engine := workflow.New(database, locks, slog.Default())

	// Repair cached balances left stale by an earlier crash.
	if _, err := engine.ReconcileBalances(ctx); err != nil {
		return fmt.Errorf("reconciling balances: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(engine, jwtSecret)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// newLocker picks the lock backend. Several server processes sharing one
// database need Redis; a single process can hold locks in memory.
func newLocker(ctx context.Context, cfg config.Config) (lock.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Info("using in-process stock locks")
		return lock.NewLocal(), func() {}, nil
	}

	rdb, err := lock.Connect(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("using redis stock locks", "addr", cfg.RedisAddr, "ttl", cfg.LockTTL)
	return lock.NewRedis(rdb, cfg.LockTTL), func() { rdb.Close() }, nil
}

// initDatabase creates a new database with the schema and an admin account,
// returning the admin's generated password.
func initDatabase(path, adminUsername string) (password string, err error) {
	var database *sql.DB
	database, err = db.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		database.Close()
		if err != nil {
			os.Remove(path)
		}
	}()

	if err = db.EnsureSchema(database); err != nil {
		return "", fmt.Errorf("ensuring schema: %w", err)
	}

	password, err = auth.GeneratePassword(16)
	if err != nil {
		return "", err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	if _, err = store.CreateUser(context.Background(), database, adminUsername, hash, model.RoleAdmin); err != nil {
		return "", fmt.Errorf("creating admin user: %w", err)
	}
	return password, nil
}

// printInitResult prints the database initialization result to stdout.
func printInitResult(dbPath, username, password string) {
	fmt.Printf("Database created: %s\n", dbPath)
	fmt.Println("Schema initialized.")
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Username: %s\n", username)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println("Create the approver and warehouse accounts from the admin account.")
}
