package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	LauncherProcess = "process"
	LauncherDocker  = "docker"

	StoreMemory = "memory"
	StoreRedis  = "redis"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	LogFormatJSON = "json"
	LogFormatText = "text"

	EnvPrefix = "MDSETUP"
)

type Config struct {
	Verbose bool   `mapstructure:"verbose"`
	Log     Log    `mapstructure:"log"`
	Server  Server `mapstructure:"server"`
	Jobs    Jobs   `mapstructure:"jobs"`
	Worker  Worker `mapstructure:"worker"`
	Upload  Upload `mapstructure:"upload"`
}

type Log struct {
	Output string `mapstructure:"output"` // "stderr"|"stdout"|"discard"|path
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

type Server struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	BodyLimit    int           `mapstructure:"body_limit" validate:"gt=0"`
}

type Jobs struct {
	Root  string `mapstructure:"root"`
	Store string `mapstructure:"store" validate:"oneof=memory redis"`
	Redis Redis  `mapstructure:"redis"`
	TTL   string `mapstructure:"ttl"`
	// Sweep drops job records and idle sessions older than TTL.
	Sweep Schedule `mapstructure:"sweep"`
}

type Redis struct {
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"-"`
}

type Worker struct {
	Launcher string        `mapstructure:"launcher" validate:"oneof=process docker"`
	Command  Command       `mapstructure:"command"`
	Docker   Docker        `mapstructure:"docker"`
	Buffer   int           `mapstructure:"buffer" validate:"gt=0"`
	Timeout  string        `mapstructure:"timeout"`
	Grace    time.Duration `mapstructure:"grace"`
}

type Command struct {
	Path string            `mapstructure:"path" validate:"required"`
	Args []string          `mapstructure:"args"`
	Env  map[string]string `mapstructure:"env"`
}

type Docker struct {
	Image   string   `mapstructure:"image" validate:"required_if=Enabled true"`
	Cmd     []string `mapstructure:"cmd"`
	Cpuset  string   `mapstructure:"cpuset"`
	Enabled bool     `mapstructure:"-"`
}

type Upload struct {
	Dir    string `mapstructure:"dir"`
	Stdout bool   `mapstructure:"stdout"`
	S3     S3     `mapstructure:"s3"`
}

type S3 struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

func (s S3) Enabled() bool {
	return s.Bucket != ""
}

// SetDefaults registers the default value of every config key, so
// environment variables are picked up even for keys missing in the file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("verbose", false)
	v.SetDefault("log.output", LogStderr)
	v.SetDefault("log.format", LogFormatJSON)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.poll_interval", time.Second)
	v.SetDefault("server.body_limit", 256<<20)
	v.SetDefault("jobs.root", "")
	v.SetDefault("jobs.store", StoreMemory)
	v.SetDefault("jobs.redis.addr", "localhost:6379")
	v.SetDefault("jobs.redis.password", "")
	v.SetDefault("jobs.redis.db", 0)
	v.SetDefault("jobs.ttl", "P1D")
	v.SetDefault("jobs.sweep.cron", "")
	v.SetDefault("jobs.sweep.interval", "PT10M")
	v.SetDefault("worker.launcher", LauncherProcess)
	v.SetDefault("worker.command.path", "python3")
	v.SetDefault("worker.command.args", []string{"-u"})
	v.SetDefault("worker.command.env", map[string]string{})
	v.SetDefault("worker.docker.image", "")
	v.SetDefault("worker.docker.cmd", []string{"python", "-u"})
	v.SetDefault("worker.docker.cpuset", "")
	v.SetDefault("worker.buffer", 256)
	v.SetDefault("worker.timeout", "")
	v.SetDefault("worker.grace", 5*time.Second)
	v.SetDefault("upload.dir", "")
	v.SetDefault("upload.stdout", false)
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.prefix", "")
	v.SetDefault("upload.s3.region", "us-east-1")
	v.SetDefault("upload.s3.endpoint", "")
	v.SetDefault("upload.s3.access_key_id", "")
	v.SetDefault("upload.s3.secret_access_key", "")
}

// NewViper returns a viper instance with defaults and MDSETUP_ environment
// overrides, eg. MDSETUP_SERVER_ADDR.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// LoadConfig reads YAML from r on top of the defaults and validates it.
func LoadConfig(r io.Reader) (Config, error) {
	v := NewViper()
	if r != nil {
		if err := v.ReadConfig(r); err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}
	return DecodeConfig(v)
}

// DecodeConfig unmarshals and validates an already populated viper instance.
func DecodeConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Jobs.Redis.Enabled = cfg.Jobs.Store == StoreRedis
	cfg.Worker.Docker.Enabled = cfg.Worker.Launcher == LauncherDocker
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fmt.Errorf("%s: failed on %s", strings.ToLower(fe.Namespace()), fe.Tag()))
		}
	}
	if _, err := c.Worker.TimeoutDuration(); err != nil {
		errs = append(errs, fmt.Errorf("config worker.timeout: %w", err))
	}
	if _, err := c.Jobs.TTLDuration(); err != nil {
		errs = append(errs, fmt.Errorf("config jobs.ttl: %w", err))
	}
	if err := c.Jobs.Sweep.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("config jobs.sweep.%w", err))
	}
	return errors.Join(errs...)
}

// TimeoutDuration returns the wall clock limit of one worker, zero means
// no limit. Accepts both ISO 8601 (PT2H) and Go (2h) durations.
func (w Worker) TimeoutDuration() (time.Duration, error) {
	return parseDuration(w.Timeout)
}

func (j Jobs) TTLDuration() (time.Duration, error) {
	return parseDuration(j.TTL)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "P") {
		return ParseISODuration(s)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// EnvList returns the worker environment in KEY=value form, sorted by key.
// Values starting with $ are expanded from the current environment.
func (c Command) EnvList() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		v := c.Env[k]
		if strings.HasPrefix(v, "$") {
			v = os.ExpandEnv(v)
		}
		env = append(env, strings.ToUpper(k)+"="+v)
	}
	return env
}
