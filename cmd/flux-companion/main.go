// Command flux-companion runs a live companion session from the
// terminal: it opens the microphone and speaker, connects to the
// streaming endpoint and talks back. The companion can also analyze a
// photo, suggest chat replies or chat over text between sessions.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/afrosatoshi1/flux-companion/pkg/assist"
	"github.com/afrosatoshi1/flux-companion/pkg/capture"
	"github.com/afrosatoshi1/flux-companion/pkg/companion"
	"github.com/afrosatoshi1/flux-companion/pkg/config"
	"github.com/afrosatoshi1/flux-companion/pkg/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		name    = flag.String("name", "", "companion display name")
		voice   = flag.String("voice", "", "prebuilt voice name")
		persona = flag.String("persona", "", "override the system persona")
		noVideo = flag.Bool("no-video", false, "disable camera frames")
		still   = flag.String("still", "", "image file to stream as camera frames")
		debug   = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *name != "" {
		cfg.CompanionName = *name
	}
	if *voice != "" {
		cfg.Voice = *voice
	}
	if *debug {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	providerOpts := []capture.ProviderOption{capture.WithLogger(log)}
	if *still != "" {
		src, err := capture.NewStillSource(*still)
		if err != nil {
			return err
		}
		providerOpts = append(providerOpts, capture.WithCamera(src))
	}
	provider, err := capture.NewProvider(providerOpts...)
	if err != nil {
		return err
	}
	defer provider.Close()

	speaker, err := capture.NewSpeaker()
	if err != nil {
		return err
	}
	defer speaker.Close()
	scheduler := companion.NewScheduler(speaker, speaker, companion.OutputSampleRate)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	helper, err := assist.NewService(rootCtx, cfg.APIKey, assist.WithLogger(log))
	if err != nil {
		return err
	}

	var db *store.Store
	if cfg.DatabaseURL != "" {
		db, err = store.Open(rootCtx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info("persistence enabled")
	}

	systemPersona := *persona
	if systemPersona == "" {
		systemPersona = fmt.Sprintf(
			"You are %s, a witty social AI companion. Keep responses extremely "+
				"short (under 2 sentences) and conversational. Be fast.",
			cfg.CompanionName)
	}

	ctrl := companion.NewController(companion.ControllerOptions{
		Devices:   provider,
		Scheduler: scheduler,
		Logger:    log,
		Preflight: func() error {
			if cfg.APIKey == "" {
				return companion.NewConfigurationError("missing API key")
			}
			return nil
		},
		Dial: func(ctx context.Context, sc companion.SessionConfig) (companion.EventConn, error) {
			return companion.Dial(ctx, companion.DialConfig{
				APIKey:        cfg.APIKey,
				Model:         cfg.LiveModel,
				Voice:         sc.VoiceID,
				SystemPersona: sc.SystemPersona,
				Logger:        log,
			})
		},
	})

	go printUpdates(ctrl)

	ctrl.Start(companion.SessionConfig{
		DisplayName:   cfg.CompanionName,
		SystemPersona: systemPersona,
		VoiceID:       cfg.Voice,
		WantsVideo:    !*noVideo,
	})
	defer ctrl.Stop()

	fmt.Printf("Live with %s. Commands: /mute /unmute /chat <msg> /quit\n", cfg.CompanionName)
	return commandLoop(rootCtx, ctrl, helper, db, cfg.CompanionName)
}

func printUpdates(ctrl *companion.Controller) {
	last := companion.State{Connection: companion.StateIdle}
	for s := range ctrl.Updates() {
		if s.Connection != last.Connection || s.LastError != last.LastError {
			if s.LastError != "" {
				fmt.Printf("[%s] %s\n", s.Connection, s.LastError)
			} else {
				fmt.Printf("[%s]\n", s.Connection)
			}
		}
		last = s
	}
}

func commandLoop(ctx context.Context, ctrl *companion.Controller, helper *assist.Service, db *store.Store, companionName string) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "/quit":
				return nil
			case line == "/mute":
				ctrl.SetMuted(true)
				fmt.Println("muted")
			case line == "/unmute":
				ctrl.SetMuted(false)
				fmt.Println("unmuted")
			case strings.HasPrefix(line, "/chat "):
				handleChat(ctx, helper, db, companionName, strings.TrimPrefix(line, "/chat "))
			case line != "":
				fmt.Println("commands: /mute /unmute /chat <msg> /quit")
			}
		}
	}
}

func handleChat(ctx context.Context, helper *assist.Service, db *store.Store, companionName, message string) {
	chatCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var history []string
	chatID := "companion"
	if db != nil {
		msgs, err := db.RecentMessages(chatCtx, chatID, 20)
		if err != nil {
			slog.Warn("load chat history", "error", err)
		}
		for _, m := range msgs {
			history = append(history, m.Body)
		}
	}

	reply := helper.ChatWithCompanion(chatCtx, history, message)
	fmt.Printf("%s: %s\n", companionName, reply)

	if db != nil {
		if _, err := db.AppendMessage(chatCtx, chatID, "user", message); err != nil {
			slog.Warn("save message", "error", err)
		}
		if _, err := db.AppendMessage(chatCtx, chatID, companionName, reply); err != nil {
			slog.Warn("save reply", "error", err)
		}
	}
}
