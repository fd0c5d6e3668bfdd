package cli

import (
	"fmt"
	"io"
	"os"

	"overlay-llm-client/chat"
	"overlay-llm-client/db"
	"overlay-llm-client/llm"
	"overlay-llm-client/prompt"
	"overlay-llm-client/utils"
)

// app holds what every command needs once flags are parsed
type app struct {
	configPath string
	provider   string
	verbose    bool

	cfg    *utils.Config
	logger *utils.Logger
	out    io.Writer
	errOut io.Writer
}

// load reads the configuration and opens the log file
func (a *app) load() error {
	path := a.configPath
	if path == "" {
		path = utils.GetConfigPath()
		if err := utils.EnsureDefaultConfig(path); err != nil {
			return fmt.Errorf("failed to create default config: %w", err)
		}
	}

	cfg, err := utils.LoadConfig(path)
	if err != nil {
		return err
	}
	if a.provider != "" {
		cfg.Provider = a.provider
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	a.cfg = cfg

	logger, err := utils.NewLogger(utils.GetLogPath(cfg.Log.Dir))
	if err != nil {
		fmt.Fprintf(a.errOut, "Warning: %v, logging to stderr\n", err)
		logger = utils.NewLoggerWithWriter(a.errOut)
	}
	level, err := utils.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(a.errOut, "Warning: %v\n", err)
	}
	logger.SetLevel(level)
	if a.verbose {
		logger.SetLevel(utils.LevelDebug)
		logger.SetEcho(a.errOut)
	}
	a.logger = logger

	logger.Debug("Using config file: %s", path)
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		a.logger.Close()
	}
}

// newClient builds the transport for the active provider
func (a *app) newClient() (*llm.Client, error) {
	name, pc := a.cfg.ActiveProvider()
	provider, err := llm.ParseProvider(name)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(llm.Config{
		Provider:           provider,
		APIKey:             pc.APIKey,
		BaseURL:            pc.BaseURL,
		Timeout:            a.cfg.Timeout(),
		MaxTokens:          pc.MaxTokens,
		ImageMaxTokens:     a.cfg.Chat.ImageMaxTokens,
		TranscriptionModel: pc.TranscriptionModel,
	})
	if err != nil {
		return nil, err
	}
	if err := client.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("%w (set it in the config file or the %s environment variable)", err, apiKeyEnv(provider))
	}
	return client, nil
}

func apiKeyEnv(p llm.Provider) string {
	if p == llm.ProviderGroq {
		return "GROQ_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// models returns the per-template models of the active provider
func (a *app) models() map[prompt.Template]string {
	_, pc := a.cfg.ActiveProvider()
	return map[prompt.Template]string{
		prompt.Short:    pc.Models.Short,
		prompt.Long:     pc.Models.Long,
		prompt.Solution: pc.Models.Solution,
	}
}

func (a *app) modelFor(tmpl prompt.Template) string {
	if m := a.models()[tmpl]; m != "" {
		return m
	}
	return tmpl.PreferredModel()
}

// openDB opens the history database and applies the retention limit
func (a *app) openDB() (*db.DB, error) {
	database, err := db.New(a.cfg.Data.DBPath)
	if err != nil {
		return nil, err
	}
	if a.cfg.Data.MaxHistory > 0 {
		removed, err := database.DeleteOldestConversations(a.cfg.Data.MaxHistory)
		if err != nil {
			a.logger.Warn("Failed to apply history limit: %v", err)
		} else if removed > 0 {
			a.logger.Info("Removed %d conversations over the history limit", removed)
		}
	}
	return database, nil
}

// newSession creates a session wired to history and the terminal renderer.
// history may be nil.
func (a *app) newSession(transport chat.Transport, history chat.Recorder, r *renderer, streaming bool) *chat.Session {
	opts := []chat.Option{
		chat.WithLogger(a.logger),
		chat.WithModels(a.models()),
		chat.WithStreaming(streaming),
		chat.WithObserver(r.observe),
	}
	if history != nil {
		opts = append(opts, chat.WithRecorder(history))
	}
	return chat.NewSession(transport, opts...)
}

// context returns the prompt context, preferring override when set
func (a *app) context(override string, disabled bool) (string, error) {
	if disabled {
		return "", nil
	}
	if override != "" {
		return override, nil
	}
	return a.cfg.ResolveContext()
}

func (a *app) defaultTemplate() prompt.Template {
	tmpl, err := prompt.ParseTemplate(a.cfg.Chat.Template)
	if err != nil {
		a.logger.Warn("Invalid chat.template in config, using short: %v", err)
		return prompt.Short
	}
	return tmpl
}

func loadImages(paths []string) ([]llm.Attachment, error) {
	loader := utils.NewImageLoader()
	var images []llm.Attachment
	for _, p := range paths {
		att, err := loader.LoadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", p, err)
		}
		images = append(images, *att)
	}
	return images, nil
}

func readAudio(path string) ([]byte, error) {
	if !utils.IsAudioFile(path) {
		return nil, fmt.Errorf("unsupported audio file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	return data, nil
}
