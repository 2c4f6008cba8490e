package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var loadOnce sync.Once

// LoadEnv loads the nearest .env file from the working directory or up to
// two of its parents. Variables already set in the environment win.
func LoadEnv() error {
	var err error
	loadOnce.Do(func() {
		cwd, werr := os.Getwd()
		if werr != nil {
			err = werr
			return
		}
		path := findEnvFile(cwd, 3)
		if path == "" {
			return
		}
		err = LoadEnvFile(path)
	})
	return err
}

func findEnvFile(dir string, depth int) string {
	for i := 0; i < depth; i++ {
		path := filepath.Join(dir, ".env")
		if st, err := os.Stat(path); err == nil && !st.IsDir() {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// LoadEnvFile exports the variables of one dotenv file. Keys are upper-cased.
func LoadEnvFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}
