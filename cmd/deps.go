package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/wallet-search-cli/internal/checkpoint"
	"github.com/sells-group/wallet-search-cli/internal/config"
	"github.com/sells-group/wallet-search-cli/internal/sheet"
	"github.com/sells-group/wallet-search-cli/internal/store"
	"github.com/sells-group/wallet-search-cli/pkg/gsheets"
)

// initStore opens and migrates the audit store. Driver "none" yields a nil
// store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "wallet-search.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck,gosec
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initCheckpoints returns the configured checkpoint backend and a func that
// releases any connection it opened.
func initCheckpoints(ctx context.Context, st store.Store) (checkpoint.Store, func(), error) {
	switch cfg.Checkpoint.Backend {
	case "redis":
		client, err := checkpoint.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		return checkpoint.NewRedisStore(client, cfg.Redis.Prefix+":"), func() { _ = client.Close() }, nil
	case "store":
		if st == nil {
			return nil, nil, eris.New("checkpoint backend store requires a store driver")
		}
		return checkpoint.NewSQLStore(st), func() {}, nil
	default:
		return checkpoint.NewFileStore(cfg.Checkpoint.Dir), func() {}, nil
	}
}

// openWorksheets resolves each name to a worksheet, from the local workbook
// when one is configured and from Google Sheets otherwise.
func openWorksheets(names []string) ([]sheet.Worksheet, error) {
	if cfg.Sheet.XLSXPath != "" {
		wb, err := sheet.OpenWorkbook(cfg.Sheet.XLSXPath)
		if err != nil {
			return nil, err
		}
		out := make([]sheet.Worksheet, 0, len(names))
		for _, n := range names {
			ws, err := wb.Worksheet(n)
			if err != nil {
				return nil, err
			}
			out = append(out, ws)
		}
		return out, nil
	}

	client, err := newSheetsClient(cfg.Google)
	if err != nil {
		return nil, err
	}
	out := make([]sheet.Worksheet, 0, len(names))
	for _, n := range names {
		out = append(out, sheet.NewGoogleSheet(client, cfg.Google.SheetID, n))
	}
	return out, nil
}

// newSheetsClient authenticates with the service account, preferring
// inline JSON over a key file.
func newSheetsClient(g config.GoogleConfig) (gsheets.Client, error) {
	var (
		creds *gsheets.Credentials
		err   error
	)
	switch {
	case g.CredentialsJSON != "":
		creds, err = gsheets.ParseCredentials(g.CredentialsJSON)
		if err == nil {
			zap.L().Info("using credentials from GOOGLE_CREDENTIALS_JSON")
		}
	case g.CredentialsFile != "":
		creds, err = gsheets.LoadCredentialsFile(g.CredentialsFile)
		if err == nil {
			zap.L().Info("using credentials file", zap.String("path", g.CredentialsFile))
		}
	default:
		return nil, eris.New("either GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE must be set")
	}
	if err != nil {
		return nil, err
	}

	tokens, err := gsheets.NewJWTSource(creds, nil)
	if err != nil {
		return nil, err
	}

	var opts []gsheets.Option
	if g.BaseURL != "" {
		opts = append(opts, gsheets.WithBaseURL(g.BaseURL))
	}
	if g.RequestsPerSecond > 0 {
		opts = append(opts, gsheets.WithRateLimit(g.RequestsPerSecond, 5))
	}
	return gsheets.NewClient(tokens, opts...), nil
}
