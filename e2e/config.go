package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// CHAT_URL is the HTTP base of a running chat, e.g. http://localhost:8080.
	// The suites are skipped when it is empty.
	ChatURL  string `envconfig:"CHAT_URL"`
	GrpcAddr string `envconfig:"GRPC_ADDR"`
	// Tokens are signed with the same secret as the server under test
	JwtSecret string `envconfig:"JWT_SECRET"`
	JwtIssuer string `envconfig:"JWT_ISSUER"`
	// E2E_DEBUG_JSON dumps REST request/response bodies
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
