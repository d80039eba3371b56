package application

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/luxfi/log"
	"github.com/spf13/viper"
)

// Well-known directories maintained by the execution engine under BaseDir.
const (
	ScoreDirName     = ".score"
	StateDBDirName   = ".statedb"
	PrecommitDirName = "precommit"
)

// App is the application context shared by every command
type App struct {
	Log     log.Logger
	BaseDir string
	Config  *viper.Viper
}

// New creates a new App instance
func New() *App {
	return &App{}
}

// Setup initializes the application with dependencies
func (a *App) Setup(baseDir string, logger log.Logger, config *viper.Viper) {
	a.BaseDir = baseDir
	a.Log = logger
	a.Config = config
}

// ScoreDir returns the compiled contract cache directory
func (a *App) ScoreDir() string {
	return filepath.Join(a.BaseDir, ScoreDirName)
}

// StateDBDir returns the state database directory
func (a *App) StateDBDir() string {
	return filepath.Join(a.BaseDir, StateDBDirName)
}

// PrecommitDir returns the directory precommit dumps are written to
func (a *App) PrecommitDir() string {
	return filepath.Join(a.BaseDir, PrecommitDirName)
}

// Clear removes the contract cache and the state database. Directories that
// do not exist are ignored.
func (a *App) Clear() error {
	for _, dir := range []string{a.ScoreDir(), a.StateDBDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		a.Log.Info("Removed directory", "path", dir)
	}
	return nil
}
