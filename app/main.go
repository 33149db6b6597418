package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/lgr"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/spamd/spamd/app/config"
	"github.com/spamd/spamd/app/metrics"
	"github.com/spamd/spamd/app/storage"
	"github.com/spamd/spamd/app/webapi"
	"github.com/spamd/spamd/lib/checks"
	"github.com/spamd/spamd/lib/checks/lua"
	"github.com/spamd/spamd/lib/detector"
	"github.com/spamd/spamd/lib/spamcheck"
)

type options struct {
	Listen         string        `long:"listen" env:"LISTEN" default:":8080" description:"listen address"`
	AuthPasswd     string        `long:"auth" env:"AUTH" default:"" description:"basic auth password for user spamd, no auth if empty"`
	Workers        int           `long:"workers" env:"WORKERS" default:"0" description:"max blocking checks running at once, number of CPUs if 0"`
	RequestTimeout time.Duration `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30s" description:"max duration of a check request"`
	RateLimit      float64       `long:"rate-limit" env:"RATE_LIMIT" default:"50" description:"max requests per second from a single client"`
	CheckDefaults  string        `long:"check-defaults" env:"CHECK_DEFAULTS" description:"yaml file with default params per check"`

	LuaPlugins struct {
		Enabled bool   `long:"enabled" env:"ENABLED" description:"enable lua plugins"`
		Dir     string `long:"dir" env:"DIR" default:"plugins" description:"directory with lua plugins"`
		Dynamic bool   `long:"dynamic" env:"DYNAMIC" description:"reload lua plugins on change"`
	} `group:"lua-plugins" namespace:"lua-plugins" env-namespace:"LUA_PLUGINS"`

	External struct {
		URL         string        `long:"url" env:"URL" default:"https://example.com/api" description:"external service url"`
		APIKey      string        `long:"api-key" env:"API_KEY" description:"external service api key, sent as bearer token"`
		Timeout     time.Duration `long:"timeout" env:"DEFAULT_TIMEOUT" default:"2s" description:"default external service timeout, EXTERNAL_SERVICE_TIMEOUT in seconds overrides it per call"`
		FailOnError bool          `long:"fail-on-error" env:"FAIL_ON_ERROR" description:"treat external service errors as spam"`
		CacheTTL    time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"0s" description:"cache external service responses, no cache if 0"`
		Retries     int           `long:"retries" env:"RETRIES" default:"0" description:"extra attempts on network errors"`
		RetryDelay  time.Duration `long:"retry-delay" env:"RETRY_DELAY" default:"100ms" description:"delay between attempts"`
	} `group:"external" namespace:"external" env-namespace:"EXTERNAL_SERVICE"`

	OpenAI struct {
		Token             string   `long:"token" env:"TOKEN" description:"openai token, disabled if not set"`
		APIBase           string   `long:"apibase" env:"API_BASE" description:"custom openai API base, default is https://api.openai.com/v1"`
		Prompt            string   `long:"prompt" env:"PROMPT" default:"" description:"openai system prompt, if empty uses builtin default"`
		CustomPrompts     []string `long:"custom-prompt" env:"CUSTOM_PROMPT" env-delim:"," description:"extra spam patterns to check"`
		Model             string   `long:"model" env:"MODEL" default:"gpt-4o-mini" description:"openai model"`
		MaxTokensResponse int      `long:"max-tokens-response" env:"MAX_TOKENS_RESPONSE" default:"1024" description:"openai max tokens in response"`
		MaxTokensRequest  int      `long:"max-tokens-request" env:"MAX_TOKENS_REQUEST" default:"2048" description:"openai max tokens in request"`
		MaxSymbolsRequest int      `long:"max-symbols-request" env:"MAX_SYMBOLS_REQUEST" default:"16000" description:"openai max symbols in request, failback if tokenizer failed"`
		ReasoningEffort   string   `long:"reasoning-effort" env:"REASONING_EFFORT" default:"" description:"reasoning effort for thinking models, none, low, medium or high"`
		FailOnError       bool     `long:"fail-on-error" env:"FAIL_ON_ERROR" description:"treat openai errors as spam"`
	} `group:"openai" namespace:"openai" env-namespace:"OPENAI"`

	Gemini struct {
		Token             string   `long:"token" env:"TOKEN" description:"gemini token, disabled if not set"`
		Prompt            string   `long:"prompt" env:"PROMPT" default:"" description:"gemini system prompt, if empty uses builtin default"`
		CustomPrompts     []string `long:"custom-prompt" env:"CUSTOM_PROMPT" env-delim:"," description:"extra spam patterns to check"`
		Model             string   `long:"model" env:"MODEL" default:"gemini-2.0-flash" description:"gemini model"`
		MaxTokensResponse int32    `long:"max-tokens-response" env:"MAX_TOKENS_RESPONSE" default:"1024" description:"gemini max tokens in response"`
		MaxSymbolsRequest int      `long:"max-symbols-request" env:"MAX_SYMBOLS_REQUEST" default:"8192" description:"gemini max symbols in request"`
		FailOnError       bool     `long:"fail-on-error" env:"FAIL_ON_ERROR" description:"treat gemini errors as spam"`
	} `group:"gemini" namespace:"gemini" env-namespace:"GEMINI"`

	Storage struct {
		Conn   string `long:"conn" env:"CONN" default:"" description:"verdicts storage, sqlite file or postgres url"`
		Memory int    `long:"memory" env:"MEMORY" default:"100" description:"keep last N verdicts in memory if conn not set, disabled if 0"`
	} `group:"storage" namespace:"storage" env-namespace:"STORAGE"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable spam rotated logs"`
		FileName   string `long:"file" env:"FILE"  default:"spamd.log" description:"location of spam log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Metrics bool `long:"metrics" env:"METRICS" description:"expose prometheus metrics on /metrics"`
	Dbg     bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("spamd %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.AuthPasswd, opts.External.APIKey, opts.OpenAI.Token, opts.Gemini.Token)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options) error {
	defaults, err := loadCheckDefaults(opts.CheckDefaults)
	if err != nil {
		return err
	}

	registry, luaChecker, err := makeRegistry(ctx, opts)
	if err != nil {
		return fmt.Errorf("can't make checks registry, %w", err)
	}
	if luaChecker != nil {
		defer luaChecker.Close()
	}
	closers := []io.Closer{}
	defer func() {
		if cerr := closeAll(closers...); cerr != nil {
			log.Printf("[WARN] can't close resources, %v", cerr)
		}
	}()
	for _, name := range defaults.Names() {
		if _, ok := registry.Resolve(name); !ok {
			log.Printf("[WARN] defaults set for unknown check %q", name)
		}
	}

	var mtr *metrics.Metrics
	if opts.Metrics {
		mtr = metrics.New(prometheus.NewRegistry())
	}

	detectorCfg := detector.Config{Workers: opts.Workers, Defaults: defaults}
	if mtr != nil {
		detectorCfg.Observer = mtr
	}
	det := detector.New(registry, detectorCfg)
	log.Printf("[INFO] detector workers: %d, checks: %d", det.Workers, len(registry.List()))

	// make spam logger
	loggerWr, err := makeSpamLogWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make spam log writer, %w", err)
	}
	closers = append(closers, loggerWr)

	srvCfg := webapi.Config{
		Version:        revision,
		ListenAddr:     opts.Listen,
		Detector:       det,
		Checks:         registry,
		SpamLogger:     makeSpamLogger(loggerWr),
		AuthPasswd:     opts.AuthPasswd,
		RequestTimeout: opts.RequestTimeout,
		RateLimit:      opts.RateLimit,
		Dbg:            opts.Dbg,
	}
	if mtr != nil {
		srvCfg.Metrics = mtr.Handler()
	}

	switch {
	case opts.Storage.Conn != "":
		verdicts, serr := storage.New(ctx, opts.Storage.Conn)
		if serr != nil {
			return fmt.Errorf("can't make verdicts storage, %w", serr)
		}
		closers = append(closers, verdicts)
		srvCfg.Verdicts = verdicts
		total, cerr := verdicts.Count(ctx, false)
		if cerr != nil {
			return fmt.Errorf("can't count stored verdicts, %w", cerr)
		}
		spam, cerr := verdicts.Count(ctx, true)
		if cerr != nil {
			return fmt.Errorf("can't count stored spam verdicts, %w", cerr)
		}
		log.Printf("[INFO] verdicts storage enabled, %s, %d verdicts stored, %d spam", verdicts.Type(), total, spam)
	case opts.Storage.Memory > 0:
		mem := storage.NewMemory(opts.Storage.Memory)
		srvCfg.Verdicts = mem
		log.Printf("[INFO] last %d verdicts kept in memory", mem.Size())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return webapi.NewServer(srvCfg).Run(gctx) })
	if luaChecker != nil && opts.LuaPlugins.Dynamic {
		watcher := lua.NewWatcher(luaChecker, opts.LuaPlugins.Dir)
		g.Go(func() error {
			if werr := watcher.Run(gctx); werr != nil {
				log.Printf("[WARN] lua plugins watcher stopped: %v", werr)
			}
			return nil
		})
	}
	return g.Wait()
}

// loadCheckDefaults loads per-check default params, empty defaults if the file is not set
func loadCheckDefaults(file string) (config.Defaults, error) {
	if file == "" {
		return config.Defaults{}, nil
	}
	if !fileutils.IsFile(file) {
		return nil, fmt.Errorf("check defaults file %s not found", file)
	}
	res, err := config.LoadDefaults(file)
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] check defaults loaded from %s for %v", file, res.Names())
	return res, nil
}

// makeRegistry makes the registry with built-in checks, the external service check and optional
// openai, gemini and lua checks. Lua checker returned to close it and to watch the plugins directory.
func makeRegistry(ctx context.Context, opts options) (*checks.Registry, *lua.Checker, error) {
	registry := checks.NewRegistry(checks.Builtin()...)

	ext := checks.NewExternal(&http.Client{}, checks.ExternalConfig{
		URL:         opts.External.URL,
		APIKey:      opts.External.APIKey,
		Timeout:     opts.External.Timeout,
		FailOnError: opts.External.FailOnError,
		CacheTTL:    opts.External.CacheTTL,
		Retries:     opts.External.Retries,
		RetryDelay:  opts.External.RetryDelay,
	})
	registry.Register(checks.NewNonBlocking(checks.ExternalName, ext.Check))

	if opts.OpenAI.Token != "" {
		log.Printf("[INFO] openai check enabled, model %s", opts.OpenAI.Model)
		clientCfg := openai.DefaultConfig(opts.OpenAI.Token)
		if opts.OpenAI.APIBase != "" {
			clientCfg.BaseURL = opts.OpenAI.APIBase
		}
		oai := checks.NewOpenAI(openai.NewClientWithConfig(clientCfg), checks.OpenAIConfig{
			MaxTokensResponse: opts.OpenAI.MaxTokensResponse,
			MaxTokensRequest:  opts.OpenAI.MaxTokensRequest,
			MaxSymbolsRequest: opts.OpenAI.MaxSymbolsRequest,
			Model:             opts.OpenAI.Model,
			SystemPrompt:      opts.OpenAI.Prompt,
			CustomPrompts:     opts.OpenAI.CustomPrompts,
			ReasoningEffort:   opts.OpenAI.ReasoningEffort,
			FailOnError:       opts.OpenAI.FailOnError,
		})
		registry.Register(checks.NewNonBlocking(checks.OpenAIName, oai.Check))
	}

	if opts.Gemini.Token != "" {
		log.Printf("[INFO] gemini check enabled, model %s", opts.Gemini.Model)
		client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: opts.Gemini.Token, Backend: genai.BackendGeminiAPI})
		if err != nil {
			return nil, nil, fmt.Errorf("can't make gemini client, %w", err)
		}
		gem := checks.NewGemini(client.Models, checks.GeminiConfig{
			Model:             opts.Gemini.Model,
			SystemPrompt:      opts.Gemini.Prompt,
			CustomPrompts:     opts.Gemini.CustomPrompts,
			MaxTokensResponse: opts.Gemini.MaxTokensResponse,
			MaxSymbolsRequest: opts.Gemini.MaxSymbolsRequest,
			FailOnError:       opts.Gemini.FailOnError,
		})
		registry.Register(checks.NewNonBlocking(checks.GeminiName, gem.Check))
	}

	if !opts.LuaPlugins.Enabled {
		return registry, nil, nil
	}
	if !fileutils.IsDir(opts.LuaPlugins.Dir) {
		return nil, nil, fmt.Errorf("lua plugins directory %s not found", opts.LuaPlugins.Dir)
	}
	luaChecker := lua.NewChecker()
	if err := luaChecker.LoadDirectory(opts.LuaPlugins.Dir); err != nil {
		// broken scripts are skipped, valid ones are still registered
		log.Printf("[WARN] some lua plugins failed to load: %v", err)
	}
	for _, c := range luaChecker.Checks() {
		registry.Register(c)
	}
	log.Printf("[INFO] lua plugins enabled from %s: %v", opts.LuaPlugins.Dir, luaChecker.Names())
	return registry, luaChecker, nil
}

// makeSpamLogger creates spam logger to keep reports about spam messages
// it writes json lines to the provided writer
func makeSpamLogger(wr io.Writer) webapi.SpamLogger {
	return webapi.SpamLoggerFunc(func(req spamcheck.Request, resp spamcheck.Response) {
		text := strings.ReplaceAll(req.Text, "\n", " ")
		text = strings.TrimSpace(text)
		log.Printf("[INFO] spam detected, score %.2f, recipients %v", resp.Score, req.Recipients)
		log.Printf("[DEBUG] spam message: %s", text)

		failed := []string{}
		for _, r := range resp.Results {
			if !r.Passed {
				failed = append(failed, r.Name)
			}
		}
		m := struct {
			TimeStamp  string   `json:"ts"`
			Text       string   `json:"text"`
			Recipients []string `json:"recipients"`
			Score      float64  `json:"score"`
			Failed     []string `json:"failed_checks"`
		}{
			TimeStamp:  time.Now().In(time.Local).Format(time.RFC3339),
			Text:       text,
			Recipients: req.Recipients,
			Score:      resp.Score,
			Failed:     failed,
		}
		line, err := json.Marshal(&m)
		if err != nil {
			log.Printf("[WARN] can't marshal json, %v", err)
			return
		}
		if _, err := wr.Write(append(line, '\n')); err != nil {
			log.Printf("[WARN] can't write to log, %v", err)
		}
	})
}

// makeSpamLogWriter creates spam log writer to keep reports about spam messages
// it parses options and makes lumberjack logger with rotation
func makeSpamLogWriter(opts options) (accessLog io.WriteCloser, err error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	maxSize, perr := sizeParse(opts.Logger.MaxSize)
	if perr != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", perr)
	}
	maxSize /= 1048576

	log.Printf("[INFO] logger enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), //nolint:gosec // size in MB can't overflow int
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

// sizeParse parses size with optional k, m, g or t suffix, case-insensitive
func sizeParse(inp string) (uint64, error) {
	if inp == "" {
		return 0, errors.New("empty value")
	}
	for i, sfx := range []string{"k", "m", "g", "t"} {
		if strings.HasSuffix(strings.ToLower(inp), sfx) {
			val, err := strconv.Atoi(inp[:len(inp)-1])
			if err != nil {
				return 0, fmt.Errorf("can't parse %s: %w", inp, err)
			}
			return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
		}
	}
	return strconv.ParseUint(inp, 10, 64)
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

// closeAll closes all closers, collecting errors
func closeAll(closers ...io.Closer) error {
	errs := new(multierror.Error)
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	nonEmpty := []string{}
	for _, s := range secrets {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) > 0 {
		logOpts = append(logOpts, lgr.Secret(nonEmpty...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
