package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/product-service/pkg/e"
	"github.com/DRSN-tech/product-service/pkg/logger"
	"github.com/jimlawless/whereami"
)

type Config struct {
	Http   *HTTPConfig
	Db     *PGDBCfg
	Redis  *RedisCfg
	Kafka  *KafkaCfg
	Outbox *OutboxCfg
	Conn   *ConnCfg
	Auth   *AuthCfg
}

type HTTPConfig struct {
	Port         string
	ApiPrefix    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PGDBCfg struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisCfg struct {
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	ProductTTL  time.Duration
}

type KafkaCfg struct {
	Topic             string
	Brokers           []string
	ClientID          string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

type OutboxCfg struct {
	DispatchInterval time.Duration // пауза между циклами сканирования outbox
	BatchSize        int
	MaxAttempts      int           // после исчерпания событие уходит в dead letter
	StaleAfter       time.Duration // зависшие в processing события старше этого срока возвращаются в очередь
	OpTimeout        time.Duration // дедлайн одной операции каталога
}

type ConnCfg struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	MaxAttempts   int
}

// AuthCfg потребляется внешним слоем аутентификации, ядро сервиса его не читает.
type AuthCfg struct {
	SecretKey            string
	AccessTokenExpiresIn time.Duration
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	db, err := loadPGDBCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	outbox, err := loadOutboxCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	conn, err := loadConnCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	auth, err := loadAuthCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Http:   http,
		Db:     db,
		Redis:  redis,
		Kafka:  kafka,
		Outbox: outbox,
		Conn:   conn,
		Auth:   auth,
	}, nil
}

func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultBrokers           = "localhost:9092"
		defaultTopic             = "product-events"
		defaultClientID          = "product-service"
		defaultPartitions        = 3
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
	)

	brokerStr := getEnvOrDefault("KAFKA_BOOTSTRAP_SERVERS", defaultBrokers)
	brokers := strings.Split(brokerStr, ",")

	topic := getEnvOrDefault("KAFKA_TOPIC", defaultTopic)
	clientID := getEnvOrDefault("KAFKA_CLIENT_ID", defaultClientID)

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replicationFactor, err := parseIntEnv("REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	networkMode := getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode)

	return &KafkaCfg{
		Brokers:           brokers,
		Topic:             topic,
		ClientID:          clientID,
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       networkMode,
	}, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort         = "8080"
		defaultApiPrefix    = "/api/v1"
		defaultReadTimeout  = 5 * time.Second
		defaultWriteTimeout = 10 * time.Second
		defaultIdleTimeout  = 60 * time.Second
	)

	port := getEnvOrDefault("HTTP_PORT", defaultPort)
	apiPrefix := getEnvOrDefault("API_PREFIX", defaultApiPrefix)
	if !strings.HasPrefix(apiPrefix, "/") {
		apiPrefix = "/" + apiPrefix
	}

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	return &HTTPConfig{
		Port:         port,
		ApiPrefix:    strings.TrimSuffix(apiPrefix, "/"),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, nil
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost    = "localhost"
		defaultPort    = "5432"
		defaultSSLMode = "disable"
	)

	user := getEnv("POSTGRES_USER")
	if user == "" {
		err := fmt.Errorf("POSTGRES_USER is required")
		log.Errorf(err, "missing POSTGRES_USER")
		return nil, err
	}

	password := getEnv("POSTGRES_PASSWORD")
	if password == "" {
		err := fmt.Errorf("POSTGRES_PASSWORD is required")
		log.Errorf(err, "missing POSTGRES_PASSWORD")
		return nil, err
	}

	dbName := getEnv("POSTGRES_DB")
	if dbName == "" {
		err := fmt.Errorf("POSTGRES_DB is required")
		log.Errorf(err, "missing POSTGRES_DB")
		return nil, err
	}

	return &PGDBCfg{
		Host:     getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:     getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  getEnvOrDefault("SSL_MODE", defaultSSLMode),
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultAddr         = "localhost:6379"
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultProductTTL   = 3 * time.Minute
	)

	addr := getEnvOrDefault("REDIS_ADDR", defaultAddr)
	password := getEnv("REDIS_PASSWORD")
	user := getEnv("REDIS_USER")

	dbStr := getEnvOrDefault("REDIS_DB_ID", strconv.Itoa(defaultDB))
	db, err := strconv.Atoi(dbStr)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	productTTL, err := parseDurationEnv("PRODUCT_TTL", defaultProductTTL)
	if err != nil {
		log.Errorf(err, "invalid PRODUCT_TTL")
		return nil, err
	}

	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	return &RedisCfg{
		Addr:        addr,
		Password:    password,
		User:        user,
		DB:          db,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     timeout,
		ProductTTL:  productTTL,
	}, nil
}

func loadOutboxCfg() (*OutboxCfg, error) {
	const (
		defaultDispatchInterval = 500 * time.Millisecond
		defaultBatchSize        = 10
		defaultMaxAttempts      = 8
		defaultStaleAfter       = time.Minute
		defaultOpTimeout        = 5 * time.Second
	)

	dispatchInterval, err := parseDurationEnv("OUTBOX_DISPATCH_INTERVAL", defaultDispatchInterval)
	if err != nil {
		return nil, e.Wrap("OUTBOX_DISPATCH_INTERVAL", err)
	}

	batchSize, err := parseIntEnv("OUTBOX_BATCH_SIZE", defaultBatchSize)
	if err != nil {
		return nil, e.Wrap("OUTBOX_BATCH_SIZE", err)
	}

	maxAttempts, err := parseIntEnv("OUTBOX_MAX_ATTEMPTS", defaultMaxAttempts)
	if err != nil {
		return nil, e.Wrap("OUTBOX_MAX_ATTEMPTS", err)
	}

	staleAfter, err := parseDurationEnv("OUTBOX_STALE_AFTER", defaultStaleAfter)
	if err != nil {
		return nil, e.Wrap("OUTBOX_STALE_AFTER", err)
	}

	opTimeout, err := parseDurationEnv("CATALOG_OP_TIMEOUT", defaultOpTimeout)
	if err != nil {
		return nil, e.Wrap("CATALOG_OP_TIMEOUT", err)
	}

	return &OutboxCfg{
		DispatchInterval: dispatchInterval,
		BatchSize:        batchSize,
		MaxAttempts:      maxAttempts,
		StaleAfter:       staleAfter,
		OpTimeout:        opTimeout,
	}, nil
}

func loadConnCfg() (*ConnCfg, error) {
	const (
		defaultProbeInterval = 15 * time.Second
		defaultProbeTimeout  = 3 * time.Second
		defaultMaxAttempts   = 5
	)

	probeInterval, err := parseDurationEnv("HEALTH_PROBE_INTERVAL", defaultProbeInterval)
	if err != nil {
		return nil, e.Wrap("HEALTH_PROBE_INTERVAL", err)
	}

	probeTimeout, err := parseDurationEnv("HEALTH_PROBE_TIMEOUT", defaultProbeTimeout)
	if err != nil {
		return nil, e.Wrap("HEALTH_PROBE_TIMEOUT", err)
	}

	maxAttempts, err := parseIntEnv("CONN_MAX_ATTEMPTS", defaultMaxAttempts)
	if err != nil {
		return nil, e.Wrap("CONN_MAX_ATTEMPTS", err)
	}

	return &ConnCfg{
		ProbeInterval: probeInterval,
		ProbeTimeout:  probeTimeout,
		MaxAttempts:   maxAttempts,
	}, nil
}

func loadAuthCfg() (*AuthCfg, error) {
	const (
		defaultSecretKey     = "development-secret-key"
		defaultExpireMinutes = 60
	)

	expireMinutes, err := parseIntEnv("ACCESS_TOKEN_EXPIRE_MINUTES", defaultExpireMinutes)
	if err != nil {
		return nil, e.Wrap("ACCESS_TOKEN_EXPIRE_MINUTES", err)
	}

	return &AuthCfg{
		SecretKey:            getEnvOrDefault("SECRET_KEY", defaultSecretKey),
		AccessTokenExpiresIn: time.Duration(expireMinutes) * time.Minute,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}
