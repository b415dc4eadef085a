package main

import (
	"context"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/compose"
	"github.com/sells-group/outreach-cli/internal/delivery"
	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/research"
	"github.com/sells-group/outreach-cli/internal/store"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
	sfpkg "github.com/sells-group/outreach-cli/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "outreach.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initComposer() (*compose.Composer, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (OUTREACH_ANTHROPIC_KEY)")
	}
	templates, err := compose.LoadTemplates()
	if err != nil {
		return nil, err
	}
	return compose.New(anthropic.NewClient(cfg.Anthropic.Key), templates, cfg.Compose), nil
}

func initDeliverer(ctx context.Context) (delivery.Deliverer, error) {
	return delivery.NewSES(ctx, cfg.Delivery)
}

// initEngine assembles the full pipeline. Stages the command does not use
// may be nil; compose and send wire them on demand.
func initEngine(ctx context.Context, needComposer, needDeliverer bool) (*engine.Engine, store.Store, error) {
	s, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	var composer engine.Composer
	if needComposer {
		c, err := initComposer()
		if err != nil {
			s.Close()
			return nil, nil, err
		}
		composer = c
	}

	var deliverer delivery.Deliverer
	if needDeliverer {
		d, err := initDeliverer(ctx)
		if err != nil {
			s.Close()
			return nil, nil, err
		}
		deliverer = d
	}

	eng := engine.New(s, research.NewAdapter(s), composer, deliverer, cfg.Engine)
	return eng, s, nil
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.Username == "" {
		return nil, eris.New("salesforce username is required (OUTREACH_SALESFORCE_USERNAME)")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.Domain,
		Username:       cfg.Salesforce.Username,
		Password:       cfg.Salesforce.Password,
		SecurityToken:  cfg.Salesforce.SecurityToken,
		ConsumerKey:    cfg.Salesforce.ConsumerKey,
		ConsumerSecret: cfg.Salesforce.ConsumerSecret,
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}
