package main

import (
	"context"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/layer-3/certify/adapters/events"
	"github.com/layer-3/certify/adapters/ledger"
	"github.com/layer-3/certify/adapters/signature"
	"github.com/layer-3/certify/adapters/store"
	"github.com/layer-3/certify/adapters/tokenizer"
	"github.com/layer-3/certify/internal/config"
	"github.com/layer-3/certify/internal/eth"
	"github.com/layer-3/certify/ports"
	"github.com/layer-3/certify/service"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired services and everything that must be closed on exit
type app struct {
	ownership    *service.OwnershipService
	certificates *service.CertificateService
	registry     *prometheus.Registry
	closers      []func() error
}

func (a *app) Close(logger *zap.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load config")
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(a.registry)

	source, verifier, err := a.buildLedger(ctx, cfg, logger)
	if err != nil {
		a.Close(logger)
		return nil, err
	}
	instrumented := ledger.NewInstrumentedLedger(source, metrics.LedgerCalls)

	opts := []service.OwnershipOption{
		service.WithChallengeTTL(cfg.Challenge.TTL),
		service.WithMaxSkew(cfg.Challenge.MaxSkew),
		service.WithMetrics(metrics),
		service.WithLogger(logger),
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close(logger)
			return nil, errors.Wrap(err, "failed to parse Redis URL")
		}
		redisClient = redis.NewClient(redisOpts)
		a.closers = append(a.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			a.Close(logger)
			return nil, errors.Wrap(err, "failed to reach Redis")
		}

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			events.NewZapLogger(logger),
		)
		if err != nil {
			a.Close(logger)
			return nil, errors.Wrap(err, "failed to create Redis publisher")
		}
		a.closers = append(a.closers, publisher.Close)
		opts = append(opts, service.WithEvents(events.NewWatermillPublisher(publisher)))
	}

	if cfg.Challenge.SingleUse {
		var guard ports.ReplayGuard = store.NewMemoryStore()
		if redisClient != nil {
			guard = store.NewRedisStore(redisClient)
		} else {
			logger.Warn("single-use challenges are tracked in memory; replays are only rejected by this instance")
		}
		opts = append(opts, service.WithReplayGuard(guard))
	}

	if cfg.Proof.Enabled {
		proofs, err := newProofTokenizer(cfg.Proof, logger)
		if err != nil {
			a.Close(logger)
			return nil, err
		}
		opts = append(opts, service.WithProofs(proofs, cfg.Proof.TTL))
	}

	a.ownership = service.NewOwnershipService(instrumented, verifier, cfg.Chain.ContractAddress, opts...)
	a.certificates = service.NewCertificateService(instrumented, cfg.Ledger.MaxParallel, logger,
		service.WithMaxCourses(cfg.Ledger.MaxCourses))
	return a, nil
}

func (a *app) buildLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.Ledger, ports.SignatureVerifier, error) {
	address := common.HexToAddress(cfg.Chain.ContractAddress)

	if cfg.Ledger.Backend == config.BackendMemory {
		mem := ledger.NewMemoryLedger(nil)
		if err := seedLedger(mem, cfg.Ledger.Seed); err != nil {
			return nil, nil, err
		}
		logger.Warn("using in-memory ledger; contract wallet (ERC-1271) signatures cannot be validated",
			zap.Int("seeded_courses", len(cfg.Ledger.Seed)))
		return mem, signature.NewVerifier(), nil
	}

	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to dial chain")
	}
	a.closers = append(a.closers, func() error { client.Close(); return nil })

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read chain id")
	}
	if chainID.Int64() != cfg.Chain.ID {
		return nil, nil, errors.Errorf("rpc endpoint serves chain %s, expected %d", chainID, cfg.Chain.ID)
	}

	cache, err := ledger.NewCourseCache(0, cfg.Ledger.CourseCacheTTL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create course cache")
	}
	a.closers = append(a.closers, func() error { cache.Close(); return nil })

	logger.Info("connected to chain",
		zap.Int64("chain_id", cfg.Chain.ID),
		zap.String("contract", address.Hex()))

	contract := ledger.NewContractLedger(client, address,
		ledger.WithTimeout(cfg.Ledger.Timeout),
		ledger.WithCourseCache(cache),
	)
	wallets := signature.NewContractWalletVerifier(client, cfg.Ledger.Timeout)
	return contract, signature.NewChainVerifier(wallets), nil
}

func seedLedger(mem *ledger.MemoryLedger, seeds []config.SeedCourse) error {
	for _, seed := range seeds {
		id, err := mem.CreateCourse(seed.Code, seed.Name, seed.ImageURI, seed.ValidityDuration)
		if err != nil {
			return errors.Wrapf(err, "seed course %s", seed.Code)
		}
		if len(seed.Holders) == 0 {
			continue
		}
		holders, err := eth.ParseAddresses(seed.Holders)
		if err != nil {
			return err
		}
		if err := mem.BatchMint(holders, id); err != nil {
			return errors.Wrapf(err, "seed holders of %s", seed.Code)
		}
	}
	return nil
}

func newProofTokenizer(cfg config.ProofConfig, logger *zap.Logger) (ports.ProofTokenizer, error) {
	if cfg.SigningKey != "" {
		return tokenizer.NewJWTTokenizerFromPEM([]byte(cfg.SigningKey))
	}
	logger.Warn("proof.signing_key not set; proofs are signed with an ephemeral key and do not survive restarts")
	return tokenizer.NewEphemeralJWTTokenizer()
}
