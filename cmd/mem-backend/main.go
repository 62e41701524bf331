// Mem-backend runs the in-memory simulated banking backend on SIM_ADDR. It prints a bearer token for the
// demo customer on start; pass it to the client as API_ACCESS_TOKEN.
//
// Set OTP_RETURN_TO_CLIENT=true to read codes from GET /dev/otp, or SMS_LOCAL_API_KEY to send them by SMS.
// JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are optional; a throwaway key pair is generated when unset.
package main

import (
	"context"
	"crypto"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"bizbank-confirmation/internal/audit"
	auditrepo "bizbank-confirmation/internal/audit/repository"
	"bizbank-confirmation/internal/config"
	"bizbank-confirmation/internal/db"
	"bizbank-confirmation/internal/devotp"
	healthhandler "bizbank-confirmation/internal/health/handler"
	"bizbank-confirmation/internal/logging"
	"bizbank-confirmation/internal/otp/sms"
	"bizbank-confirmation/internal/security"
	"bizbank-confirmation/internal/server"
	"bizbank-confirmation/internal/sim"
	simhandler "bizbank-confirmation/internal/sim/handler"
	telemetryotel "bizbank-confirmation/internal/telemetry/otel"
)

const serviceName = "bizbank-sim"

func main() {
	customer := flag.String("customer", "cust-1", "Demo customer id the printed token is issued for")
	account := flag.String("own-account", "11111111", "Account number owned by the demo customer")
	phone := flag.String("phone", "", "Phone number OTP codes are sent to when SMS is enabled")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := tokenProvider(cfg)
	if err != nil {
		logger.Fatal("mem-backend: jwt keys", zap.Error(err))
	}

	opts := []sim.Option{
		sim.WithLogger(logger),
		sim.WithChallengeTTL(cfg.ChallengeTTL()),
		sim.WithOwnAccounts(*customer, *account),
	}
	var codes *devotp.MemoryStore
	if cfg.OTPReturnToClient && !cfg.IsProduction() {
		codes = devotp.NewMemoryStore(nil)
		opts = append(opts, sim.WithDevCodes(codes))
	}
	if cfg.SMSLocalAPIKey != "" {
		opts = append(opts, sim.WithSMS(sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)))
		if *phone != "" {
			opts = append(opts, sim.WithPhone(*customer, *phone))
		}
	}
	bank := sim.NewBank(opts...)

	var conn *sql.DB
	var repo auditrepo.Repository
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("mem-backend: database", zap.Error(err))
		}
		defer conn.Close()
		repo = auditrepo.NewPostgresRepository(conn)
	}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure, logger)
	if err != nil {
		logger.Fatal("mem-backend: otel", zap.Error(err))
	}
	providers.SetGlobal()
	defer func() { _ = providers.Shutdown(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := server.Deps{
		Routes:      simhandler.New(bank, logger).Routes,
		Tokens:      tokens,
		Audit:       audit.NewLogger(repo, logger),
		Registry:    reg,
		ServiceName: serviceName,
	}
	if conn != nil {
		deps.Health = healthhandler.NewServer(conn, nil)
	} else {
		deps.Health = healthhandler.NewServer(nil, nil)
	}
	if codes != nil {
		deps.DevOTP = simhandler.DevOTP(bank)
	}

	token, exp, err := tokens.IssueAccess(*customer)
	if err != nil {
		logger.Fatal("mem-backend: issue token", zap.Error(err))
	}
	fmt.Printf("API_ACCESS_TOKEN=%s\n", token)
	logger.Info("mem-backend: starting",
		zap.String("addr", cfg.SimAddr),
		zap.String("customer", *customer),
		zap.Time("token_expires_at", exp),
		zap.Bool("dev_otp", codes != nil),
	)

	if err := server.ListenAndServe(ctx, cfg.SimAddr, server.NewRouter(deps), logger); err != nil {
		logger.Error("mem-backend: serve", zap.Error(err))
	}
}

func tokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	var (
		priv crypto.Signer
		pub  crypto.PublicKey
		err  error
	)
	if cfg.JWTPrivateKey != "" {
		if priv, err = security.ParsePrivateKey(cfg.JWTPrivateKey); err != nil {
			return nil, err
		}
		if cfg.JWTPublicKey != "" {
			if pub, err = security.ParsePublicKey(cfg.JWTPublicKey); err != nil {
				return nil, err
			}
		} else {
			pub = priv.Public()
		}
	} else {
		if priv, err = security.GenerateSigner(); err != nil {
			return nil, err
		}
		pub = priv.Public()
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}
