package config

import (
	"github.com/spf13/viper"
	"sync"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "LANG")
		viper.BindEnv("poll_interval", "POLL_INTERVAL")
		viper.BindEnv("alert_threshold", "ALERT_THRESHOLD")
		viper.BindEnv("storage_path", "STORAGE_PATH")
		viper.BindEnv("backup_dir", "BACKUP_DIR")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("admin_chat_id", "ADMIN_CHAT_ID")

		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
		viper.SetDefault("poll_interval", 300)
		viper.SetDefault("alert_threshold", 5.0)
		viper.SetDefault("storage_path", "data/user_data.json")
		viper.SetDefault("backup_dir", "data/backups")
		viper.SetDefault("db_path", "data/bot.db")
		viper.SetDefault("admin_chat_id", 0)
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetInt64(key string) int64 {
	InitConfig()
	return viper.GetInt64(key)
}

func GetFloat64(key string) float64 {
	InitConfig()
	return viper.GetFloat64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}
