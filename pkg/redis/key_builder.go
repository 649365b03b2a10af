package redis

import "fmt"

// KeyBuilder provides environment-aware Redis key building functionality
type KeyBuilder struct {
	prefix string // Environment prefix (staging/prod)
}

// NewKeyBuilder creates a new key builder with environment-based prefix
func NewKeyBuilder(environment string) *KeyBuilder {
	prefix := "prod"
	if environment == "development" || environment == "staging" || environment == "test" {
		prefix = "staging"
	}

	return &KeyBuilder{
		prefix: prefix,
	}
}

// BuildKey constructs a Redis key with the environment prefix
func (kb *KeyBuilder) BuildKey(key string) string {
	return fmt.Sprintf("%s:%s", kb.prefix, key)
}

// GetPrefix returns the current environment prefix
func (kb *KeyBuilder) GetPrefix() string {
	return kb.prefix
}

// Poll read-model keys
func (kb *KeyBuilder) KeyPollResults(slug string) string {
	return kb.BuildKey(fmt.Sprintf(KeyPollResults, slug))
}

func (kb *KeyBuilder) KeyPollDetail(slug string) string {
	return kb.BuildKey(fmt.Sprintf(KeyPollDetail, slug))
}

// KeyHookLock guards a single lifecycle hook firing for a poll
func (kb *KeyBuilder) KeyHookLock(pollID int64, hook string) string {
	return kb.BuildKey(fmt.Sprintf(KeyHookLock, pollID, hook))
}

// Scheduler keys
func (kb *KeyBuilder) KeySchedulerDue() string {
	return kb.BuildKey(KeySchedulerDue)
}

func (kb *KeyBuilder) KeySchedulerJobs() string {
	return kb.BuildKey(KeySchedulerJobs)
}

func (kb *KeyBuilder) KeySchedulerDLQ() string {
	return kb.BuildKey(KeySchedulerDLQ)
}

// KeyCustom builds a key from an arbitrary pattern
func (kb *KeyBuilder) KeyCustom(pattern string, args ...interface{}) string {
	return kb.BuildKey(fmt.Sprintf(pattern, args...))
}
