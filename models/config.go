package models

// Config 構造体はサーバー全体の設定情報を保持します。
// config.jsonの値を環境変数で上書きできます。
type Config struct {
	// Postgres
	DBHost     string `json:"db_host" env:"DB_HOST"`
	DBUser     string `json:"db_user" env:"DB_USER"`
	DBPassword string `json:"db_password" env:"DB_PASSWORD"`
	DBName     string `json:"db_name" env:"DB_NAME"`
	DBSSLMode  string `json:"db_sslmode" env:"DB_SSLMODE"`

	// Redis
	RedisAddr     string `json:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `json:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `json:"redis_db" env:"REDIS_DB"`

	// 認証・HTTP
	JWTSecret      string   `json:"jwt_secret" env:"JWT_SECRET"`
	ListenAddr     string   `json:"listen_addr" env:"LISTEN_ADDR"`
	AllowedOrigins []string `json:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	Debug          bool     `json:"debug" env:"DEBUG"`

	// ゲーム設定
	Difficulty     string `json:"difficulty" env:"GAME_DIFFICULTY"`
	SceneCatalog   string `json:"scene_catalog" env:"SCENE_CATALOG"` // 空なら組み込みシナリオ
	StateTTLSecond int    `json:"state_ttl_seconds" env:"STATE_TTL_SECONDS"`

	// 外部ナレーション生成サービス
	NarratorURL           string `json:"narrator_url" env:"NARRATOR_URL"`
	NarratorTimeoutSecond int    `json:"narrator_timeout_seconds" env:"NARRATOR_TIMEOUT_SECONDS"`
	NarratorLanguage      string `json:"narrator_language" env:"NARRATOR_LANGUAGE"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		DBHost:                "localhost",
		DBSSLMode:             "disable",
		RedisAddr:             "localhost:6379",
		ListenAddr:            ":8080",
		AllowedOrigins:        []string{"http://localhost:3000"},
		Difficulty:            "easy",
		StateTTLSecond:        3600,
		NarratorTimeoutSecond: 60,
		NarratorLanguage:      "en",
	}
}
