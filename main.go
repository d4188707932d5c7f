package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"diagbot/internal/archive"
	"diagbot/internal/classifier"
	"diagbot/internal/config"
	"diagbot/internal/engine"
	"diagbot/internal/lexicon"
	"diagbot/internal/logger"
	"diagbot/internal/orchestrator"
	"diagbot/internal/provider"
	"diagbot/internal/services"
	"diagbot/internal/session"
	"diagbot/internal/storage"
)

func main() {
	// .env is optional, environment variables may come from elsewhere.
	_ = godotenv.Load()

	ctx := context.Background()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		cfg = config.Default()
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}

	lex := lexicon.Default()
	if cfg.Engine.LexiconPath != "" {
		lex, err = lexicon.LoadFile(cfg.Engine.LexiconPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Engine.LexiconPath).Msg("failed to load lexicon")
		}
	}
	rules := classifier.New(lex)

	providerCfg := cfg.BuildProviderConfig()
	var chatModel model.BaseChatModel
	if providerCfg.APIKey != "" || providerCfg.Name == "ollama" {
		chatModel, err = provider.NewChatModel(ctx, providerCfg)
		if err != nil {
			log.Fatal().Err(err).Str("provider", providerCfg.Name).Msg("failed to create chat model")
		}
	} else {
		log.Warn().Msg("no provider API key configured, running rules-only")
	}

	orch, err := orchestrator.New(ctx, chatModel, rules, providerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create orchestrator")
	}

	var store storage.Store
	if url := cfg.RedisURL(); url != "" {
		redisStore, err := storage.NewRedisStore(ctx, url, time.Duration(cfg.Redis.TTLMinutes)*time.Minute)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		log.Warn().Msg("no redis configured, conversations are kept in memory")
		store = storage.NewMemoryStore()
	}

	repairers := services.NewRepairerDirectory()
	sessions := session.NewManager(store, orch, repairers,
		session.WithArchive(archive.New(cfg.Engine.ArchiveDir)),
	)
	eng := engine.New(sessions)

	runDemo(ctx, eng)
}

// runDemo drives the engine from stdin: each line is a user message, and a
// few slash commands expose the remaining actions.
func runDemo(ctx context.Context, eng *engine.Engine) {
	start := eng.Handle(ctx, engine.Request{
		Action:    engine.ActionStartConversation,
		SessionID: "demo-session",
	})
	printResponse(start)
	if !start.Success {
		return
	}
	conversationID := start.ConversationID

	fmt.Println("\nTapez votre message (/report, /end <score>, /quit) :")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return

		case line == "/report":
			printResponse(eng.Handle(ctx, engine.Request{
				Action:         engine.ActionGenerateReport,
				ConversationID: conversationID,
			}))

		case strings.HasPrefix(line, "/end"):
			score := 80.0
			if parts := strings.Fields(line); len(parts) > 1 {
				if s, err := strconv.ParseFloat(parts[1], 64); err == nil {
					score = s
				}
			}
			printResponse(eng.Handle(ctx, engine.Request{
				Action:            engine.ActionEndConversation,
				ConversationID:    conversationID,
				SatisfactionScore: &score,
			}))
			return

		default:
			printResponse(eng.Handle(ctx, engine.Request{
				Action:         engine.ActionSendMessage,
				ConversationID: conversationID,
				Content:        line,
			}))
		}
	}
}

func printResponse(resp *engine.Response) {
	out, err := sonic.ConfigDefault.MarshalIndent(resp, "", "  ")
	if err != nil {
		fmt.Printf("error marshaling response: %v\n", err)
		return
	}
	fmt.Printf("%s\n", out)
}
