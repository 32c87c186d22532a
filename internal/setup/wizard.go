package setup

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/crypto/bcrypt"

	"github.com/hwestman/personabot/internal/config"
	"github.com/hwestman/personabot/internal/llm"
)

// Wizard walks through the configuration sections in order and saves
// the result. Escape anywhere aborts without writing.
type Wizard struct {
	cfg  *config.Config
	path string
}

// Run executes the full wizard.
func (w *Wizard) Run() error {
	if err := w.showWelcome(); err != nil {
		return err
	}
	if err := w.setupDataDir(); err != nil {
		return err
	}
	if err := w.setupProviders(); err != nil {
		return err
	}
	if err := w.setupDiscord(); err != nil {
		return err
	}
	if err := w.setupTelegram(); err != nil {
		return err
	}
	if err := w.setupWeb(); err != nil {
		return err
	}
	return w.reviewAndSave()
}

func (w *Wizard) showWelcome() error {
	fmt.Println()
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║       Welcome to PersonaBot Setup      ║")
	fmt.Println("╚════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("This wizard will help you configure PersonaBot.")
	fmt.Println("We'll set up:")
	fmt.Println("  • LLM providers (Anthropic, OpenAI, xAI)")
	fmt.Println("  • Discord bot (gateway or webhook mode)")
	fmt.Println("  • Telegram bot (optional)")
	fmt.Println("  • Admin web server")
	fmt.Println()

	var proceed bool
	form := newForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Ready to begin?").
				Value(&proceed),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}
	if !proceed {
		return huh.ErrUserAborted
	}
	return nil
}

func (w *Wizard) setupDataDir() error {
	dataDir := w.cfg.DataDir

	form := newForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Database, personas file and generated images live here").
				Value(&dataDir).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("data directory is required")
					}
					return nil
				}),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	w.cfg.DataDir = strings.TrimSpace(dataDir)
	return nil
}

// knownProviders is the order providers appear in the picker.
var knownProviders = []string{"anthropic", "openai", "xai"}

var providerLabels = map[string]string{
	"anthropic": "Anthropic (Claude)",
	"openai":    "OpenAI (GPT, also used for /imagine)",
	"xai":       "xAI (Grok)",
}

func (w *Wizard) setupProviders() error {
	if w.cfg.LLM.Providers == nil {
		w.cfg.LLM.Providers = make(map[string]llm.ProviderConfig)
	}

	var selected []string
	for _, name := range knownProviders {
		if _, ok := w.cfg.LLM.Providers[name]; ok {
			selected = append(selected, name)
		}
	}

	var options []huh.Option[string]
	for _, name := range knownProviders {
		options = append(options, huh.NewOption(providerLabels[name], name))
	}

	form := newForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("LLM providers").
				Description("Select every provider you have an API key for").
				Options(options...).
				Value(&selected).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return fmt.Errorf("at least one provider is required")
					}
					return nil
				}),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	picked := make(map[string]bool, len(selected))
	for _, name := range selected {
		picked[name] = true
		if err := w.configureProvider(name); err != nil {
			return err
		}
	}
	for name := range w.cfg.LLM.Providers {
		if !picked[name] {
			delete(w.cfg.LLM.Providers, name)
		}
	}

	// Default provider answers /hey and friends.
	if len(selected) == 1 {
		w.cfg.LLM.Default = selected[0]
		return nil
	}

	defaultName := w.cfg.LLM.Default
	if !picked[defaultName] {
		defaultName = selected[0]
	}
	var defaultOptions []huh.Option[string]
	for _, name := range selected {
		defaultOptions = append(defaultOptions, huh.NewOption(providerLabels[name], name))
	}
	form = newForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default provider").
				Description("Used for conversation unless a persona overrides it").
				Options(defaultOptions...).
				Value(&defaultName),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	w.cfg.LLM.Default = defaultName
	return nil
}

func (w *Wizard) configureProvider(name string) error {
	pc := w.cfg.LLM.Providers[name]
	if pc.Type == "" {
		pc.Type = name
	}

	apiKey := pc.APIKey
	model := pc.Model

	keyDescription := "Enter your API key"
	if apiKey != "" {
		keyDescription = "Press enter to keep the current key"
	}

	form := newForm(
		huh.NewGroup(
			huh.NewInput().
				Title(fmt.Sprintf("%s API key", providerLabels[name])).
				Description(keyDescription).
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Model").
				Description("Leave empty for the built-in default").
				Value(&model),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	if apiKey == "" && pc.APIKey == "" {
		fmt.Printf("⚠ No API key provided for %s. Skipping.\n", name)
		delete(w.cfg.LLM.Providers, name)
		return nil
	}
	if apiKey != "" {
		pc.APIKey = apiKey
	}
	pc.Model = strings.TrimSpace(model)

	w.cfg.LLM.Providers[name] = pc
	return nil
}

func (w *Wizard) setupDiscord() error {
	enabled := w.cfg.Discord.Enabled()

	form := newForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the Discord channel?").
				Value(&enabled),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if !enabled {
		w.cfg.Discord.Token = ""
		return nil
	}

	token := w.cfg.Discord.Token
	appID := w.cfg.Discord.AppID
	guildID := w.cfg.Discord.GuildID
	mode := w.cfg.Discord.Mode
	if mode == "" {
		mode = "gateway"
	}

	form = newForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("From the Discord developer portal, Bot section").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(requireValue("bot token")),
			huh.NewInput().
				Title("Application ID").
				Value(&appID).
				Validate(requireValue("application ID")),
			huh.NewInput().
				Title("Guild ID (optional)").
				Description("Sync commands to one server only; empty syncs globally").
				Value(&guildID),
			huh.NewSelect[string]().
				Title("Connection mode").
				Options(
					huh.NewOption("Gateway (websocket, supports modals)", "gateway"),
					huh.NewOption("Webhook (interactions endpoint on the web server)", "webhook"),
				).
				Value(&mode),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	w.cfg.Discord.Token = strings.TrimSpace(token)
	w.cfg.Discord.AppID = strings.TrimSpace(appID)
	w.cfg.Discord.GuildID = strings.TrimSpace(guildID)
	w.cfg.Discord.Mode = mode

	if mode != "webhook" {
		return nil
	}

	publicKey := w.cfg.Discord.PublicKey
	form = newForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Interactions public key").
				Description("Hex key from the developer portal, used to verify webhooks").
				Value(&publicKey).
				Validate(func(s string) error {
					raw, err := hex.DecodeString(strings.TrimSpace(s))
					if err != nil {
						return fmt.Errorf("not a hex string")
					}
					if len(raw) != ed25519.PublicKeySize {
						return fmt.Errorf("key must be %d bytes", ed25519.PublicKeySize)
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	w.cfg.Discord.PublicKey = strings.TrimSpace(publicKey)
	return nil
}

func (w *Wizard) setupTelegram() error {
	enabled := w.cfg.Telegram.Enabled()

	form := newForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the Telegram channel?").
				Value(&enabled),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if !enabled {
		w.cfg.Telegram.Token = ""
		return nil
	}

	token := w.cfg.Telegram.Token
	allowed := joinIDs(w.cfg.Telegram.AllowedUsers)

	form = newForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot token").
				Description("From @BotFather").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(requireValue("bot token")),
			huh.NewInput().
				Title("Allowed user IDs (optional)").
				Description("Comma-separated numeric IDs; empty allows everyone").
				Placeholder("123456789, 987654321").
				Value(&allowed).
				Validate(func(s string) error {
					_, err := parseIDs(s)
					return err
				}),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	ids, err := parseIDs(allowed)
	if err != nil {
		return err
	}
	w.cfg.Telegram.Token = strings.TrimSpace(token)
	w.cfg.Telegram.AllowedUsers = ids
	return nil
}

func (w *Wizard) setupWeb() error {
	enabled := w.cfg.Web.Enabled()

	form := newForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the admin web server?").
				Description("Status page and the Discord webhook endpoint").
				Value(&enabled),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if !enabled {
		w.cfg.Web.Listen = ""
		return nil
	}

	listen := w.cfg.Web.Listen
	if listen == "" {
		listen = "127.0.0.1:8321"
	}
	adminUser := w.cfg.Web.AdminUser
	if adminUser == "" {
		adminUser = "admin"
	}

	form = newForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Placeholder("127.0.0.1:8321").
				Value(&listen).
				Validate(requireValue("listen address")),
			huh.NewInput().
				Title("Admin username").
				Value(&adminUser).
				Validate(requireValue("admin username")),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	w.cfg.Web.Listen = strings.TrimSpace(listen)
	w.cfg.Web.AdminUser = strings.TrimSpace(adminUser)

	return w.setupWebPassword()
}

func (w *Wizard) setupWebPassword() error {
	for {
		var password, confirm string

		description := "At least 8 characters"
		if w.cfg.Web.AdminPasswordHash != "" {
			description = "Press enter to keep the current password"
		}

		form := newForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Admin password").
					Description(description).
					EchoMode(huh.EchoModePassword).
					Value(&password).
					Validate(func(s string) error {
						if s == "" && w.cfg.Web.AdminPasswordHash != "" {
							return nil
						}
						if len(s) < 8 {
							return fmt.Errorf("password must be at least 8 characters")
						}
						return nil
					}),
				huh.NewInput().
					Title("Confirm password").
					EchoMode(huh.EchoModePassword).
					Value(&confirm),
			),
		)
		if err := form.Run(); err != nil {
			return err
		}

		if password == "" && w.cfg.Web.AdminPasswordHash != "" {
			return nil
		}
		if password != confirm {
			fmt.Println("✗ Passwords do not match.")
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		w.cfg.Web.AdminPasswordHash = string(hash)
		return nil
	}
}

func (w *Wizard) reviewAndSave() error {
	fmt.Println()
	fmt.Println("Configuration summary:")
	fmt.Printf("  Data directory:  %s\n", w.cfg.DataDir)

	var providers []string
	for name := range w.cfg.LLM.Providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	fmt.Printf("  LLM providers:   %s (default: %s)\n", strings.Join(providers, ", "), w.cfg.LLM.Default)

	if w.cfg.Discord.Enabled() {
		fmt.Printf("  Discord:         %s mode, token %s\n", w.cfg.Discord.Mode, maskSecret(w.cfg.Discord.Token))
	} else {
		fmt.Println("  Discord:         disabled")
	}
	if w.cfg.Telegram.Enabled() {
		users := "everyone"
		if len(w.cfg.Telegram.AllowedUsers) > 0 {
			users = fmt.Sprintf("%d allowed users", len(w.cfg.Telegram.AllowedUsers))
		}
		fmt.Printf("  Telegram:        token %s, %s\n", maskSecret(w.cfg.Telegram.Token), users)
	} else {
		fmt.Println("  Telegram:        disabled")
	}
	if w.cfg.Web.Enabled() {
		fmt.Printf("  Web server:      http://%s (user: %s)\n", w.cfg.Web.Listen, w.cfg.Web.AdminUser)
	} else {
		fmt.Println("  Web server:      disabled")
	}
	fmt.Println()

	var save bool
	form := newForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Save to %s?", w.path)).
				Value(&save),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	if !save {
		return huh.ErrUserAborted
	}

	if err := w.cfg.Save(w.path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("✓ Configuration saved to %s\n", w.path)
	fmt.Println()
	fmt.Println("Start the bot with: personabot")
	return nil
}

// requireValue rejects empty input after trimming.
func requireValue(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a numeric user ID", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// maskSecret keeps only the trailing characters so the summary proves
// which credential is configured without printing it.
func maskSecret(s string) string {
	if s == "" {
		return "not set"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}
