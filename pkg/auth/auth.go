// Package auth supplies the principal and token verification boundary for
// the gateway. Tokens come either from the config file or from a JSON
// secret in AWS Secrets Manager, loaded once at startup.
package auth

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog"

	"github.com/loggate-io/loggate/pkg/config"
	"github.com/loggate-io/loggate/pkg/errors"
)

// ErrUnknownToken is returned when no configured token matches.
var ErrUnknownToken = errors.New(errors.ErrCodeAuth, "unknown token")

// Principal identifies an authenticated dashboard user.
type Principal struct {
	Subject string
	Admin   bool
}

// Verifier checks a bearer token and yields the principal behind it.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

// NewVerifier builds the verifier the config asks for: a Secrets Manager
// backed token set when auth.secret_id is set, the static token list from
// the config file otherwise.
func NewVerifier(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Verifier, error) {
	if cfg.Auth.SecretID == "" {
		return NewStaticVerifier(cfg.Auth.Tokens), nil
	}

	api, err := newSecretsClient(cfg.CloudWatch)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAuth, "failed to create secretsmanager client", err)
	}

	v, err := NewSecretsManagerVerifier(ctx, api, cfg.Auth.SecretID)
	if err != nil {
		return nil, err
	}

	log.Info().Str("secret", cfg.Auth.SecretID).Int("tokens", len(v.tokens)).
		Msg("loaded auth tokens from secrets manager")
	return v, nil
}

// StaticVerifier resolves tokens from an in-memory set.
type StaticVerifier struct {
	tokens map[string]Principal
}

// NewStaticVerifier builds a verifier over the configured token list.
func NewStaticVerifier(tokens []config.TokenConfig) *StaticVerifier {
	m := make(map[string]Principal, len(tokens))
	for _, tc := range tokens {
		if tc.Token == "" {
			continue
		}
		m[tc.Token] = Principal{Subject: tc.Subject, Admin: tc.Admin}
	}
	return &StaticVerifier{tokens: m}
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrUnknownToken
	}

	p, ok := v.tokens[token]
	if !ok {
		return Principal{}, ErrUnknownToken
	}
	return p, nil
}

// SecretsAPI is the slice of the Secrets Manager client the verifier needs.
// Tests substitute a fake; production code passes *secretsmanager.Client.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretEntry is one value in the token secret:
//
//	{ "<token>": {"subject": "ops", "admin": true}, ... }
type secretEntry struct {
	Subject string `json:"subject"`
	Admin   bool   `json:"admin"`
}

// NewSecretsManagerVerifier fetches the token set from Secrets Manager once
// and serves every later lookup from memory.
func NewSecretsManagerVerifier(ctx context.Context, api SecretsAPI, secretID string) (*StaticVerifier, error) {
	out, err := api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAuth, "failed to read auth token secret", err)
	}

	raw := aws.ToString(out.SecretString)
	if raw == "" {
		return nil, errors.New(errors.ErrCodeAuth, "auth token secret is empty")
	}

	var entries map[string]secretEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, errors.ParseError("auth token secret", err)
	}

	tokens := make(map[string]Principal, len(entries))
	for token, entry := range entries {
		if token == "" {
			continue
		}
		tokens[token] = Principal{Subject: entry.Subject, Admin: entry.Admin}
	}
	return &StaticVerifier{tokens: tokens}, nil
}

// newSecretsClient reuses the cloudwatch region and credential settings;
// the token secret lives in the same account as the log groups.
func newSecretsClient(cfg config.CloudWatchConfig) (*secretsmanager.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}
