package flagutil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/petr-muller/civicfeed/internal/civic/api"
	"github.com/petr-muller/civicfeed/internal/civic/auth"
	"github.com/petr-muller/civicfeed/internal/config"
)

const (
	tokenFileName string = "token"

	flagBaseURL   = "api.base-url"
	flagWSURL     = "api.ws-url"
	flagTokenFile = "api.bearer-token-file"
	flagPostRoute = "post-route"
	flagOrigin    = "origin"
)

// APIOptions configure how civicfeed reaches the issue store
type APIOptions struct {
	BaseURL         string
	WSURL           string
	BearerTokenFile string
	PostRoute       string
	Origin          string

	// token is set from the environment and wins over BearerTokenFile
	token string
	fs    *pflag.FlagSet
}

// AddPFlags injects the options into the given pflag.FlagSet
func (o *APIOptions) AddPFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.BaseURL, flagBaseURL, api.DefaultBaseURL, "Base URL of the issue store API")
	fs.StringVar(&o.WSURL, flagWSURL, "", "WebSocket URL of the realtime channel; realtime updates are off when empty")
	fs.StringVar(&o.BearerTokenFile, flagTokenFile, filepath.Join(config.MustConfigDir(), tokenFileName), "Path to the file containing the bearer token issued by the identity provider")
	fs.StringVar(&o.PostRoute, flagPostRoute, config.DefaultPostRoute, "Route segment of share links")
	fs.StringVar(&o.Origin, flagOrigin, "", "Public site origin share links point to")
	o.fs = fs
}

// Complete fills every option that was not given on the command line from
// settings, which already carry environment overrides
func (o *APIOptions) Complete(settings *config.Settings) {
	if settings == nil {
		return
	}
	for name, pair := range map[string]struct {
		target *string
		value  string
	}{
		flagBaseURL:   {&o.BaseURL, settings.APIBase},
		flagWSURL:     {&o.WSURL, settings.WSURL},
		flagTokenFile: {&o.BearerTokenFile, settings.TokenFile},
		flagPostRoute: {&o.PostRoute, settings.PostRoute},
		flagOrigin:    {&o.Origin, settings.Origin},
	} {
		if o.fs != nil && o.fs.Changed(name) {
			continue
		}
		if pair.value != "" {
			*pair.target = pair.value
		}
	}
	o.token = settings.Token
}

// Validate checks the URLs
func (o *APIOptions) Validate() error {
	if err := validateURL(o.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("invalid --%s: %w", flagBaseURL, err)
	}
	if o.WSURL != "" {
		if err := validateURL(o.WSURL, "ws", "wss"); err != nil {
			return fmt.Errorf("invalid --%s: %w", flagWSURL, err)
		}
	}
	if o.Origin != "" {
		if err := validateURL(o.Origin, "http", "https"); err != nil {
			return fmt.Errorf("invalid --%s: %w", flagOrigin, err)
		}
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q must be an absolute %s URL", raw, strings.Join(schemes, " or "))
}

// TokenSource returns where the bearer token comes from
func (o *APIOptions) TokenSource() auth.TokenSource {
	if o.token != "" {
		return auth.StaticToken(o.token)
	}
	return auth.FileToken{Path: o.BearerTokenFile}
}

// Client creates the issue store client
func (o *APIOptions) Client(opts ...api.Option) *api.Client {
	return api.NewClient(o.BaseURL, opts...)
}
