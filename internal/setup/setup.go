// Package setup provides the interactive first-run wizard. It walks
// through channels, LLM providers and the web server, then writes the
// config file the run command loads.
package setup

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/hwestman/personabot/internal/config"
)

// isAbort checks if the error is a user abort (Escape pressed).
func isAbort(err error) bool {
	return errors.Is(err, huh.ErrUserAborted)
}

// newForm applies the shared theme so every step looks the same.
func newForm(groups ...*huh.Group) *huh.Form {
	return huh.NewForm(groups...).WithTheme(huh.ThemeCharm())
}

// Run launches the wizard. An existing config file pre-fills the
// answers, so re-running setup edits rather than starts over.
func Run() error {
	path := config.FindConfig()
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		// A broken file should not lock the user out of setup.
		fmt.Printf("Warning: could not load %s (%v), starting fresh.\n", path, err)
		cfg = config.Defaults()
	}

	w := &Wizard{cfg: cfg, path: path}
	if err := w.Run(); err != nil {
		if isAbort(err) {
			fmt.Println("Setup cancelled.")
			return nil
		}
		return err
	}
	return nil
}
