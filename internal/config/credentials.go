package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Secret names usable as ${name} in a server's env.
const (
	SecretBraveSearch   = "brave_search"
	SecretSystemMessage = "system_message"
	SecretNotion        = "notion"
	SecretGitHub        = "github"
)

// ErrEmptyCredential is returned for a credential file with no content.
var ErrEmptyCredential = errors.New("credential is empty")

// CredentialsConfig names the credential files, relative to Dir unless absolute.
type CredentialsConfig struct {
	Dir           string `mapstructure:"dir"`
	BraveSearch   string `mapstructure:"brave_search"`
	SystemMessage string `mapstructure:"system_message"`
	Notion        string `mapstructure:"notion"`
	GitHub        string `mapstructure:"github"`
}

// Credentials holds the secrets read at startup. Every field is non-empty.
type Credentials struct {
	BraveSearch   string
	SystemMessage string
	Notion        string
	GitHub        string
}

// CredentialError reports which credential could not be loaded.
type CredentialError struct {
	Name string
	Path string
	Err  error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

// LoadCredentials reads the four credential files in order and fails on the
// first one that is missing or holds only whitespace.
func LoadCredentials(cc CredentialsConfig) (*Credentials, error) {
	var c Credentials
	files := []struct {
		name string
		file string
		dst  *string
	}{
		{SecretBraveSearch, cc.BraveSearch, &c.BraveSearch},
		{SecretSystemMessage, cc.SystemMessage, &c.SystemMessage},
		{SecretNotion, cc.Notion, &c.Notion},
		{SecretGitHub, cc.GitHub, &c.GitHub},
	}

	for _, f := range files {
		path := f.file
		if !filepath.IsAbs(path) {
			path = filepath.Join(cc.Dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &CredentialError{Name: f.name, Path: path, Err: err}
		}
		value := strings.TrimSpace(string(data))
		if value == "" {
			return nil, &CredentialError{Name: f.name, Path: path, Err: ErrEmptyCredential}
		}
		*f.dst = value
	}
	return &c, nil
}

// Lookup resolves a secret by name for ${name} expansion.
func (c Credentials) Lookup(name string) (string, bool) {
	switch name {
	case SecretBraveSearch:
		return c.BraveSearch, true
	case SecretSystemMessage:
		return c.SystemMessage, true
	case SecretNotion:
		return c.Notion, true
	case SecretGitHub:
		return c.GitHub, true
	}
	return "", false
}
