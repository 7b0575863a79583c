package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// CircuitBreakerConfig is the environment-driven form of Config for one downstream.
type CircuitBreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// GetLLMConfig returns the breaker settings for the language-model endpoint (CB_LLM_*).
// Model calls are slow, so the breaker opens late and stays open longer.
func GetLLMConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32("CB_LLM_MAX_REQUESTS", 2),
		Interval:         getEnvDuration("CB_LLM_INTERVAL", 120*time.Second),
		Timeout:          getEnvDuration("CB_LLM_TIMEOUT", 30*time.Second),
		FailureThreshold: getEnvUint32("CB_LLM_FAILURE_THRESHOLD", 5),
		SuccessThreshold: getEnvUint32("CB_LLM_SUCCESS_THRESHOLD", 1),
	}
}

// GetToolServerConfig returns the breaker settings for the remote decision server (CB_TOOLS_*).
func GetToolServerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32("CB_TOOLS_MAX_REQUESTS", 5),
		Interval:         getEnvDuration("CB_TOOLS_INTERVAL", 30*time.Second),
		Timeout:          getEnvDuration("CB_TOOLS_TIMEOUT", 15*time.Second),
		FailureThreshold: getEnvUint32("CB_TOOLS_FAILURE_THRESHOLD", 3),
		SuccessThreshold: getEnvUint32("CB_TOOLS_SUCCESS_THRESHOLD", 2),
	}
}

// GetRedisConfig returns the breaker settings for the rate-limit store (CB_REDIS_*).
func GetRedisConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:      getEnvUint32("CB_REDIS_MAX_REQUESTS", 3),
		Interval:         getEnvDuration("CB_REDIS_INTERVAL", 30*time.Second),
		Timeout:          getEnvDuration("CB_REDIS_TIMEOUT", 10*time.Second),
		FailureThreshold: getEnvUint32("CB_REDIS_FAILURE_THRESHOLD", 5),
		SuccessThreshold: getEnvUint32("CB_REDIS_SUCCESS_THRESHOLD", 1),
	}
}

// ToConfig converts CircuitBreakerConfig to circuit breaker Config
func (cbc CircuitBreakerConfig) ToConfig() Config {
	return Config{
		MaxRequests:      cbc.MaxRequests,
		Interval:         cbc.Interval,
		Timeout:          cbc.Timeout,
		FailureThreshold: cbc.FailureThreshold,
		SuccessThreshold: cbc.SuccessThreshold,
	}
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
