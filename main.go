package main

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"trpgserver/auth"           //JWTの署名鍵
	"trpgserver/database"       //PostgreSQLとRedisの初期化
	"trpgserver/internal/grade" //判定とダイス
	"trpgserver/internal/scene" //シーンカタログ
	"trpgserver/internal/state" //Redis上のセッション状態
	"trpgserver/internal/turn"  //選択の判定
	"trpgserver/middlewares"    //JWT認証
	"trpgserver/trpg"           //WebSocketの接続処理
	"trpgserver/trpg/actions"
	"trpgserver/trpg/broadcast"
	trpgdb "trpgserver/trpg/database"
	"trpgserver/trpg/narrator"
	"trpgserver/utils" //ロガーの初期化とCronジョブ(PostgreSQLの定期クリーンナップ)

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

func main() {
	config, err := database.LoadConfig("config.json")
	if err != nil {
		panic(err)
	}

	logger, err := utils.InitLogger(config.Debug) // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	if config.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set, using the built-in development key")
	} else {
		auth.SetKey(config.JWTSecret)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(config.AllowedOrigins, r.Header.Get("Origin"))
		},
	}

	// 非同期でPostgreSQLとRedisの初期化
	var db *gorm.DB
	var rdb *redis.Client
	done := make(chan bool)

	go func() {
		var err error
		db, err = database.InitPostgreSQL(config, logger)
		if err != nil {
			logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
		}
		if err := database.AutoMigrate(db); err != nil {
			logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
		}
		done <- true
	}()

	go func() {
		var err error
		rdb, err = database.InitRedis(config, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		done <- true
	}()

	// 2つの初期化が完了するのを待つ
	<-done
	<-done

	// クーロンスケジューラのセットアップと呼び出し
	scheduler, err := utils.CronCleaner(db, logger)
	if err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	// シーンカタログ。指定がなければ組み込みのシナリオ
	var catalog scene.Catalog = scene.DefaultCatalog()
	if config.SceneCatalog != "" {
		loaded, err := scene.LoadCatalog(config.SceneCatalog)
		if err != nil {
			logger.Fatal("Failed to load scene catalog", zap.String("path", config.SceneCatalog), zap.Error(err))
		}
		catalog = loaded
	}

	seed, err := grade.NewSeed()
	if err != nil {
		logger.Fatal("Failed to seed dice roller", zap.Error(err))
	}
	dc := grade.DC(config.Difficulty)
	resolver := turn.New(grade.NewRandRoller(seed), nil, turn.WithDC(dc))

	store := state.New(rdb, logger, state.WithTTL(time.Duration(config.StateTTLSecond)*time.Second))
	hub := broadcast.NewHub(logger)
	gmNarrator := narrator.New(config.NarratorURL, config.NarratorLanguage, time.Duration(config.NarratorTimeoutSecond)*time.Second, logger)
	handler := actions.NewHandler(store, catalog, resolver, hub, gmNarrator, trpgdb.NewSessionRepository(db), logger)
	logger.Info("Game engine ready", zap.String("difficulty", config.Difficulty), zap.Int("dc", dc))

	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "SessionID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/ws", middlewares.AuthMiddleware(logger), func(c *gin.Context) {
		trpg.HandleConnections(c.Writer, c.Request, rdb, hub, handler, upgrader, logger)
	})

	if err := router.Run(config.ListenAddr); err != nil {
		logger.Fatal("Failed to run HTTP server", zap.Error(err))
	}
}

// originAllowed はOriginヘッダーが許可リストにあるかを確認します。ヘッダーがなければ許可します。
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
