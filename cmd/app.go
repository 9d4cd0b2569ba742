package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"chat-widget/internal/config"
	"chat-widget/internal/integrations/chatapi"
	"chat-widget/internal/integrations/paramstore"
	"chat-widget/internal/repository"
	"chat-widget/internal/session"
	"chat-widget/internal/usecase"
	"chat-widget/internal/view"
)

// app holds the clients of one run.
type app struct {
	cfg      *config.Config
	store    repository.KeyValueStore
	client   *chatapi.Client
	identity *session.Identity
	widget   *usecase.Widget
}

// awsLoader loads the AWS SDK config once, and only when something needs it.
type awsLoader struct {
	once sync.Once
	cfg  aws.Config
	err  error
}

func newAWSLoader() *awsLoader { return &awsLoader{} }

func (l *awsLoader) Load(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.cfg, l.err = awsconfig.LoadDefaultConfig(ctx)
		if l.err != nil {
			l.err = fmt.Errorf("load AWS config: %w", l.err)
		}
	})
	return l.cfg, l.err
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	loader := newAWSLoader()

	if cfg.NeedsEndpointLookup() {
		awsCfg, err := loader.Load(ctx)
		if err != nil {
			return nil, err
		}
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolveEndpoint(ctx, params); err != nil {
			return nil, err
		}
	}

	client, err := chatapi.NewClient(cfg.Endpoint, chatapi.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}

	// Server-issued ids live only for the process, so no durable store is
	// touched.
	var store repository.KeyValueStore = repository.NewMemoryStore()
	storeKind := "none"
	if cfg.Mode() == session.ModePersisted {
		if store, err = openStore(ctx, cfg, loader); err != nil {
			return nil, err
		}
		storeKind = cfg.StoreKind()
	}

	identity, err := session.Init(ctx, cfg.Mode(), store)
	if err != nil {
		store.Close()
		return nil, err
	}

	widget, err := usecase.NewWidget(client, identity, view.NewChatBox(), usecase.WithLoading(cfg.ShowLoading))
	if err != nil {
		store.Close()
		return nil, err
	}

	log.Info().
		Str("endpoint", client.Endpoint()).
		Str("mode", string(identity.Mode())).
		Str("store", storeKind).
		Str("profile", cfg.Profile).
		Msg("chat widget ready")

	return &app{cfg: cfg, store: store, client: client, identity: identity, widget: widget}, nil
}

func openStore(ctx context.Context, cfg *config.Config, loader *awsLoader) (repository.KeyValueStore, error) {
	switch cfg.StoreKind() {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	case config.StorePebble:
		dir, err := cfg.PebbleDir()
		if err != nil {
			return nil, err
		}
		return repository.NewPebbleStore(dir, cfg.Profile)
	case config.StoreDynamoDB:
		awsCfg, err := loader.Load(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoTable, cfg.Profile)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// WriteTranscript saves the conversation when a transcript path is set.
func (a *app) WriteTranscript() error {
	if a.cfg.Transcript == "" {
		return nil
	}
	f, err := os.Create(a.cfg.Transcript)
	if err != nil {
		return fmt.Errorf("create transcript: %w", err)
	}
	werr := view.WriteTranscript(f, a.widget.ChatBox().Messages())
	return errors.Join(werr, f.Close())
}

func (a *app) Close() error {
	return a.store.Close()
}
