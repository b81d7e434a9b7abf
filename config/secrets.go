// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// Environment variables the secret store reads credentials from. Values are
// moved into guarded memory immediately; the variables are unset afterwards
// so they do not linger in the process environment.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvInfluxToken  = "INFLUXDB_TOKEN"
)

// Secrets holds API credentials in memguard enclaves for the lifetime of
// the process. Values are decrypted only for the duration of a Use call and
// never logged.
//
// Thread Safety: safe for concurrent use.
type Secrets struct {
	mu       sync.RWMutex
	enclaves map[string]*memguard.Enclave
}

// LoadSecretsFromEnv captures the known credential variables into guarded
// memory. Missing variables are simply absent; callers check with Has.
func LoadSecretsFromEnv() *Secrets {
	s := &Secrets{enclaves: make(map[string]*memguard.Enclave)}
	for _, name := range []string{EnvOpenAIKey, EnvAnthropicKey, EnvInfluxToken} {
		if v := os.Getenv(name); v != "" {
			s.enclaves[name] = memguard.NewEnclave([]byte(v))
			os.Unsetenv(name)
		}
	}
	return s
}

// Has reports whether a credential is available.
func (s *Secrets) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.enclaves[name]
	return ok
}

// Use decrypts the named credential into a locked buffer, passes its string
// form to fn, and destroys the buffer before returning. fn must not retain
// the value.
func (s *Secrets) Use(name string, fn func(value string) error) error {
	s.mu.RLock()
	enclave, ok := s.enclaves[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("config: secret %s is not set", name)
	}

	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("config: open secret %s: %w", name, err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// Reveal returns a copy of the named credential. Prefer Use; Reveal exists
// for SDK constructors that must own the key string.
func (s *Secrets) Reveal(name string) (string, error) {
	var out string
	err := s.Use(name, func(v string) error {
		out = strings.Clone(v)
		return nil
	})
	return out, err
}

// Purge wipes every guarded allocation. Call on shutdown, typically after
// memguard.CatchInterrupt has been armed in main.
func (s *Secrets) Purge() {
	memguard.Purge()
}
