package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"pricewatch-telegram-bot/config"
	"pricewatch-telegram-bot/internal/alert"
	"pricewatch-telegram-bot/internal/commands"
	"pricewatch-telegram-bot/internal/database"
	"pricewatch-telegram-bot/internal/pricesource"
	"pricewatch-telegram-bot/internal/registry"
	"pricewatch-telegram-bot/internal/storage"
	"pricewatch-telegram-bot/internal/telegram"
	"pricewatch-telegram-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	translation.Configure("locales", strings.ToLower(config.GetString("lang")))

	if err := database.InitDB(config.GetString("db_path")); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	store, err := storage.New(config.GetString("storage_path"), config.GetString("backup_dir"))
	if err != nil {
		log.Fatalf("Failed to open user storage: %v", err)
	}

	reg, err := registry.New(store, config.GetFloat64("alert_threshold"))
	if err != nil {
		log.Fatalf("Failed to load registry: %v", err)
	}

	source := pricesource.NewPaprika(config.GetString("api_pro_key"))

	handler := &commands.Handler{
		Registry: reg,
		Source:   source,
		Store:    store,
	}

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
		AdminChatID:    config.GetInt64("admin_chat_id"),
	}, handler)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	metrics := alert.NewMetrics()
	loadMetricsFromDB(metrics)

	engine := alert.NewEngine(reg, source, bot,
		time.Duration(config.GetInt("poll_interval"))*time.Second, metrics)
	engine.Start()

	updates, err := bot.GetUpdatesChannel()
	if err != nil {
		log.Fatalf("Failed to get updates channel: %v", err)
	}

	go handleUpdates(bot, updates)

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			saveMetricsToDB(metrics)
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		engine.Stop()
		saveMetricsToDB(metrics)
		log.Println("Metrics saved, shutting down...")
		os.Exit(0)
	}()

	if err := launchMetricsAndHealthServer(config.GetInt("metrics_port")); err != nil {
		log.Fatalf("Failed to start metrics and health server: %v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting price watch bot...")
}

func handleUpdates(bot *telegram.Bot, updates tgbotapi.UpdatesChannel) {
	for update := range updates {
		if update.Message == nil {
			log.Debug("Received non-message update")
			continue
		}

		if !update.Message.IsCommand() {
			continue
		}

		handleCommand(bot, update)
	}
}

func handleCommand(bot *telegram.Bot, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	err := bot.SendMessage(telegram.Message{
		ChatID:    update.Message.Chat.ID,
		Text:      bot.HandleUpdate(update),
		MessageID: update.Message.MessageID,
	})

	if err != nil {
		log.Errorf("Failed to send message: %v", err)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func launchMetricsAndHealthServer(port int) error {
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/health", healthCheckHandler)

	log.Infof("Launching metrics and health endpoint on :%d", port)
	return http.ListenAndServe(fmt.Sprintf(":%d", port), http.DefaultServeMux)
}

func loadMetricsFromDB(m *alert.Metrics) {
	cyclesRun, _ := database.GetMetric("cycles_run")
	alertsSent, _ := database.GetMetric("alerts_sent")
	fetchErrors, _ := database.GetMetric("fetch_errors")
	deliveryErrors, _ := database.GetMetric("delivery_errors")

	m.CyclesRun.Add(cyclesRun)
	m.AlertsSent.Add(alertsSent)
	m.FetchErrors.Add(fetchErrors)
	m.DeliveryErrors.Add(deliveryErrors)

	log.Println("Metrics loaded from database.")
}

func saveMetricsToDB(m *alert.Metrics) {
	database.SaveMetric("cycles_run", getMetricValue(m.CyclesRun))
	database.SaveMetric("alerts_sent", getMetricValue(m.AlertsSent))
	database.SaveMetric("fetch_errors", getMetricValue(m.FetchErrors))
	database.SaveMetric("delivery_errors", getMetricValue(m.DeliveryErrors))

	log.Println("Metrics saved to database.")
}

func getMetricValue(metric prometheus.Collector) float64 {
	var metricValue float64
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	metricProto := &dto.Metric{}
	if err := (<-metricChan).Write(metricProto); err != nil {
		log.Printf("Failed to read metric value: %v", err)
		return 0
	}

	if metricProto.Counter != nil {
		metricValue = metricProto.Counter.GetValue()
	} else if metricProto.Gauge != nil {
		metricValue = metricProto.Gauge.GetValue()
	}
	return metricValue
}
