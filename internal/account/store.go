// Package account loads the static set of mailbox account configurations.
//
// Accounts come from an accounts.yml file, from IMAP<n>_* environment
// variables, or both. A missing or incomplete account disables that account
// only; it is never fatal to the process.
package account

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/inboxd/inboxd/internal/model"
)

// maxEnvAccounts bounds the IMAP<n>_* prefix scan.
const maxEnvAccounts = 9

// Load returns all valid accounts from the YAML file at path (if non-empty)
// plus any configured through the environment. Invalid entries are logged
// and skipped.
func Load(path string) ([]model.Account, error) {
	var accounts []model.Account

	if path != "" {
		fromFile, err := loadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load accounts file: %w", err)
			}
			log.Printf("INFO: accounts file %s not found, using environment only", path)
		}
		accounts = append(accounts, fromFile...)
	}

	accounts = append(accounts, FromEnv()...)

	valid := accounts[:0]
	for _, a := range accounts {
		if err := Validate(a); err != nil {
			log.Printf("WARN: skipping account %q: %v", a.ID, err)
			continue
		}
		valid = append(valid, a)
	}
	return valid, nil
}

// FromEnv reads accounts from IMAP1_* .. IMAP9_* environment variables,
// mirroring the deployment convention: HOST, USER, PASS (or PASSWORD),
// PORT, TLS (or SECURE). A prefix with no HOST and no USER is absent,
// not invalid.
func FromEnv() []model.Account {
	var accounts []model.Account
	for i := 1; i <= maxEnvAccounts; i++ {
		prefix := fmt.Sprintf("IMAP%d", i)
		host := strings.TrimSpace(os.Getenv(prefix + "_HOST"))
		user := strings.TrimSpace(os.Getenv(prefix + "_USER"))
		if host == "" && user == "" {
			continue
		}

		password := strings.TrimSpace(os.Getenv(prefix + "_PASSWORD"))
		if password == "" {
			password = strings.TrimSpace(os.Getenv(prefix + "_PASS"))
		}

		port := 0
		if v := os.Getenv(prefix + "_PORT"); v != "" {
			port, _ = strconv.Atoi(v)
		}

		tls := envBool(prefix+"_TLS") || envBool(prefix+"_SECURE")

		accounts = append(accounts, model.Account{
			ID:       fmt.Sprintf("account%d", i),
			Host:     host,
			Port:     port,
			User:     user,
			Password: password,
			TLS:      tls,
		})
	}
	return accounts
}

// Validate checks that an account carries everything needed to connect.
func Validate(a model.Account) error {
	if a.ID == "" {
		return fmt.Errorf("missing id")
	}
	if a.Host == "" {
		return fmt.Errorf("missing host")
	}
	if a.User == "" {
		return fmt.Errorf("missing user")
	}
	if a.Password == "" {
		return fmt.Errorf("missing password")
	}
	return nil
}

func loadFile(path string) ([]model.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f model.AccountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return f.Accounts, nil
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return v
}
