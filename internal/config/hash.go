package config

import (
	"encoding/json"
	"hash/fnv"
)

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// HashJob hashes the work-defining fields of a job (kind, command, url, secret,
// message, timeout, description). Schedule and pause state are excluded.
func HashJob(j JobConfig) uint64 {
	b, err := json.Marshal(struct {
		Kind, Command, URL, Secret, Message, Timeout, Description string
	}{j.Kind, j.Command, j.URL, j.Secret, j.Message, j.Timeout, j.Description})
	if err != nil {
		return 0
	}
	return hashBytes(b)
}
