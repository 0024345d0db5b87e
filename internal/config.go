package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,required=true"`
	GrpcPort int    `env:"GRPC_PORT,required=true"`
	LogLevel string `env:"LOG_LEVEL,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LimitMessages  *int   `env:"LIMIT_MESSAGES"`

	SubscriptionBufferSize int           `env:"SUBSCRIPTION_BUFFER_SIZE,default=256"`
	EventBufferSize        int           `env:"EVENT_BUFFER_SIZE,default=1024"`
	RecentLimit            int           `env:"RECENT_LIMIT,default=50"`
	SearchLimit            int           `env:"SEARCH_LIMIT,default=5"`
	MaxContentLength       int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	OperationTimeout       time.Duration `env:"OPERATION_TIMEOUT,default=10s"`
	SinkTimeout            time.Duration `env:"SINK_TIMEOUT,default=2s"`
	ShutdownTimeout        time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	EnableModeration bool   `env:"ENABLE_MODERATION,default=false"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	JwtSecret string `env:"JWT_SECRET,required=true"`
	JwtIssuer string `env:"JWT_ISSUER"`

	AssistantName         string        `env:"ASSISTANT_NAME,default=Jonathan"`
	AssistantReply        string        `env:"ASSISTANT_REPLY,default=Hello! I'm just a stub for now."`
	AssistantBufferSize   int           `env:"ASSISTANT_BUFFER_SIZE,default=64"`
	AssistantHistoryLimit int           `env:"ASSISTANT_HISTORY_LIMIT,default=20"`
	AssistantTimeout      time.Duration `env:"ASSISTANT_TIMEOUT,default=30s"`
	GeminiAPIKey          string        `env:"GEMINI_API_KEY"`
	GeminiModel           string        `env:"GEMINI_MODEL,default=gemini-2.5-flash"`

	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	GCInterval           time.Duration `env:"GC_INTERVAL,default=10m"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,default=80"`
	EnableDebugEndpoints bool          `env:"ENABLE_DEBUG_ENDPOINTS,default=false"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
