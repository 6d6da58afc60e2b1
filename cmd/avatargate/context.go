package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/avatargate/avatargate/internal/config"
	"github.com/avatargate/avatargate/internal/store"
	"github.com/joho/godotenv"
)

type commandContext struct {
	envFileFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(envFileFlag *string) *commandContext {
	return &commandContext{envFileFlag: envFileFlag}
}

// loadEnvFile loads the dotenv file without overriding variables that are
// already set. A missing file is only an error when it was named explicitly.
func (c *commandContext) loadEnvFile(explicit bool) error {
	path := strings.TrimSpace(*c.envFileFlag)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) withStore(fn func(*store.SQLiteStore) error) error {
	st, err := store.NewSQLiteStore(c.configValue().DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	return fn(st)
}
