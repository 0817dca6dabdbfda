// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/substream/substream-control/pkg/logger"
)

const (
	generatedCLIFlagUsage = "generated"
	envPrefix             = "SUBSTREAM_"

	DefaultServiceNamespace    = "twirp/livekit"
	DefaultRPCTimeout          = 10 * time.Second
	DefaultAdminTokenTTL       = 600 * time.Second
	DefaultParticipantTokenTTL = 86400 * time.Second

	minSecretLength = 32
)

var ErrKeyFileIncorrectPermission = errors.New("key file others permissions must be set to 0")

type Config struct {
	// base URL of the platform, ws(s):// is accepted and rewritten to http(s)://
	URL       string `yaml:"url,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	APISecret string `yaml:"api_secret,omitempty"`
	// optional aud claim, some hosted projects require it on admin tokens
	Audience string `yaml:"audience,omitempty"`
	// path prefix joined to "Service/Method" with a dot
	ServiceNamespace string        `yaml:"service_namespace,omitempty"`
	RPCTimeout       time.Duration `yaml:"rpc_timeout,omitempty"`

	Admin     AdminConfig     `yaml:"admin,omitempty"`
	Probe     ProbeConfig     `yaml:"probe,omitempty"`
	DevServer DevServerConfig `yaml:"dev_server,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`

	Development bool `yaml:"development,omitempty"`
}

type AdminConfig struct {
	// identity placed in sub of admin credentials
	Identity string        `yaml:"identity,omitempty"`
	TokenTTL time.Duration `yaml:"token_ttl,omitempty"`
	// 0 disables caching, every call mints a new credential
	CredentialCacheSize int `yaml:"credential_cache_size,omitempty"`
}

type ProbeConfig struct {
	Concurrency int    `yaml:"concurrency,omitempty"`
	NamePrefix  string `yaml:"name_prefix,omitempty"`
}

type DevServerConfig struct {
	BindAddress string            `yaml:"bind_address,omitempty"`
	Port        uint32            `yaml:"port,omitempty"`
	KeyFile     string            `yaml:"key_file,omitempty"`
	Keys        map[string]string `yaml:"keys,omitempty"`
	// integer input types the emulated project accepts
	SupportedInputTypes []int32 `yaml:"supported_input_types,omitempty"`
	// requests per second per API key, 0 disables limiting
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	RateBurst int     `yaml:"rate_burst,omitempty"`
	// public endpoints handed out with created ingress, empty derives them
	// from the request host
	WHIPBaseURL string `yaml:"whip_base_url,omitempty"`
	RTMPBaseURL string `yaml:"rtmp_base_url,omitempty"`
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
}

var DefaultConfig = Config{
	ServiceNamespace: DefaultServiceNamespace,
	RPCTimeout:       DefaultRPCTimeout,
	Admin: AdminConfig{
		Identity: "substream-admin",
		TokenTTL: DefaultAdminTokenTTL,
	},
	Probe: ProbeConfig{
		Concurrency: 4,
		NamePrefix:  "probe",
	},
	DevServer: DevServerConfig{
		BindAddress:         "127.0.0.1",
		Port:                7880,
		SupportedInputTypes: []int32{0, 1, 4},
		RateBurst:           10,
	},
}

func NewConfig(confString string, strictMode bool, c *cli.Context, baseFlags []cli.Flag) (*Config, error) {
	// start with defaults
	marshalled, err := yaml.Marshal(&DefaultConfig)
	if err != nil {
		return nil, err
	}

	var conf Config
	err = yaml.Unmarshal(marshalled, &conf)
	if err != nil {
		return nil, err
	}

	if confString != "" {
		decoder := yaml.NewDecoder(strings.NewReader(confString))
		decoder.KnownFields(strictMode)
		if err := decoder.Decode(&conf); err != nil {
			return nil, fmt.Errorf("could not parse config: %v", err)
		}
	}

	if c != nil {
		if err := conf.updateFromCLI(c, baseFlags); err != nil {
			return nil, err
		}
	}

	// expand env vars in filenames
	file, err := homedir.Expand(os.ExpandEnv(conf.DevServer.KeyFile))
	if err != nil {
		return nil, err
	}
	conf.DevServer.KeyFile = file

	if conf.Logging.Level == "" && conf.Development {
		conf.Logging.Level = "debug"
	}

	return &conf, nil
}

// ValidateCredentials checks the key material needed to sign credentials.
func (conf *Config) ValidateCredentials() error {
	if conf.APIKey == "" {
		return &ConfigurationError{Field: "api_key", Reason: "must be set"}
	}
	if conf.APISecret == "" {
		return &ConfigurationError{Field: "api_secret", Reason: "must be set"}
	}
	if !conf.Development && len(conf.APISecret) < minSecretLength {
		logger.Warnw("secret is too short, should be at least 32 characters for security", nil, "apiKey", conf.APIKey)
	}
	return nil
}

// Validate checks everything needed to call the platform and normalizes the
// endpoint URL. It is meant to run once at startup.
func (conf *Config) Validate() error {
	if err := conf.ValidateCredentials(); err != nil {
		return err
	}

	u, err := NormalizeURL(conf.URL)
	if err != nil {
		return err
	}
	conf.URL = u

	if conf.RPCTimeout <= 0 {
		return &ConfigurationError{Field: "rpc_timeout", Reason: "must be positive"}
	}
	if conf.Admin.TokenTTL < time.Second {
		return &ConfigurationError{Field: "admin.token_ttl", Reason: "must be at least one second"}
	}
	// exp and nbf are whole seconds
	if conf.Admin.TokenTTL%time.Second != 0 {
		return &ConfigurationError{Field: "admin.token_ttl", Reason: "must be a whole number of seconds"}
	}
	if conf.Probe.Concurrency <= 0 {
		return &ConfigurationError{Field: "probe.concurrency", Reason: "must be positive"}
	}
	if conf.ServiceNamespace == "" {
		conf.ServiceNamespace = DefaultServiceNamespace
	}
	return nil
}

// NormalizeURL accepts the websocket form of a project URL, which is what
// client SDKs are usually configured with, and returns its HTTP equivalent
// without a trailing slash.
func NormalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", &ConfigurationError{Field: "url", Reason: "must be set"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &ConfigurationError{Field: "url", Reason: err.Error()}
	}
	switch u.Scheme {
	case "http", "https":
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", &ConfigurationError{Field: "url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return "", &ConfigurationError{Field: "url", Reason: "missing host"}
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// LoadKeys returns the dev server's key/secret pairs, preferring the key file.
func (d *DevServerConfig) LoadKeys() (map[string]string, error) {
	if d.KeyFile == "" {
		if len(d.Keys) == 0 {
			return nil, &ConfigurationError{Field: "dev_server.keys", Reason: "one of key_file or keys must be provided"}
		}
		return d.Keys, nil
	}

	var otherFilter os.FileMode = 0o007
	if st, err := os.Stat(d.KeyFile); err != nil {
		return nil, err
	} else if st.Mode().Perm()&otherFilter != 0o000 {
		return nil, ErrKeyFileIncorrectPermission
	}
	f, err := os.Open(d.KeyFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	keys := map[string]string{}
	if err = yaml.NewDecoder(f).Decode(keys); err != nil {
		return nil, errors.Wrap(err, "decode key file")
	}
	return keys, nil
}

type configNode struct {
	TypeNode  reflect.Value
	TagPrefix string
}

func (conf *Config) ToCLIFlagNames(existingFlags []cli.Flag) map[string]reflect.Value {
	existingFlagNames := map[string]bool{}
	for _, flag := range existingFlags {
		for _, flagName := range flag.Names() {
			existingFlagNames[flagName] = true
		}
	}

	flagNames := map[string]reflect.Value{}
	var currNode configNode
	nodes := []configNode{{reflect.ValueOf(conf).Elem(), ""}}
	for len(nodes) > 0 {
		currNode, nodes = nodes[0], nodes[1:]
		for i := 0; i < currNode.TypeNode.NumField(); i++ {
			// inspect yaml tag from struct field to get path
			field := currNode.TypeNode.Type().Field(i)
			yamlTagArray := strings.SplitN(field.Tag.Get("yaml"), ",", 2)
			yamlTag := yamlTagArray[0]
			isInline := false
			if len(yamlTagArray) > 1 && yamlTagArray[1] == "inline" {
				isInline = true
			}
			if (yamlTag == "" && (!isInline || currNode.TagPrefix == "")) || yamlTag == "-" {
				continue
			}
			yamlPath := yamlTag
			if currNode.TagPrefix != "" {
				if isInline {
					yamlPath = currNode.TagPrefix
				} else {
					yamlPath = fmt.Sprintf("%s.%s", currNode.TagPrefix, yamlTag)
				}
			}
			if existingFlagNames[yamlPath] {
				continue
			}

			// map flag name to value
			value := currNode.TypeNode.Field(i)
			if value.Kind() == reflect.Struct {
				nodes = append(nodes, configNode{value, yamlPath})
			} else {
				flagNames[yamlPath] = value
			}
		}
	}

	return flagNames
}

var durationType = reflect.TypeOf(time.Duration(0))

func GenerateCLIFlags(existingFlags []cli.Flag, hidden bool) ([]cli.Flag, error) {
	blankConfig := &Config{}
	flags := make([]cli.Flag, 0)
	for name, value := range blankConfig.ToCLIFlagNames(existingFlags) {
		kind := value.Kind()
		if kind == reflect.Ptr {
			kind = value.Type().Elem().Kind()
		}

		var flag cli.Flag
		envVar := envPrefix + strings.ToUpper(strings.Replace(name, ".", "_", -1))

		switch {
		case value.Type() == durationType:
			flag = &cli.DurationFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Bool:
			flag = &cli.BoolFlag{
				Name:   name,
				Usage:  generatedCLIFlagUsage,
				Hidden: hidden,
			}
		case kind == reflect.String:
			flag = &cli.StringFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Int, kind == reflect.Int32, kind == reflect.Int64:
			flag = &cli.Int64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Uint8, kind == reflect.Uint16, kind == reflect.Uint32, kind == reflect.Uint64:
			flag = &cli.Uint64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Float32, kind == reflect.Float64:
			flag = &cli.Float64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case kind == reflect.Slice, kind == reflect.Map:
			// only settable from YAML
			continue
		default:
			return flags, fmt.Errorf("cli flag generation unsupported for config type: %s is a %s", name, kind.String())
		}

		flags = append(flags, flag)
	}

	return flags, nil
}

func (conf *Config) updateFromCLI(c *cli.Context, baseFlags []cli.Flag) error {
	generatedFlagNames := conf.ToCLIFlagNames(baseFlags)
	for name, configValue := range generatedFlagNames {
		if !c.IsSet(name) {
			continue
		}

		kind := configValue.Kind()
		if kind == reflect.Ptr {
			// instantiate value to be set
			configValue.Set(reflect.New(configValue.Type().Elem()))

			kind = configValue.Type().Elem().Kind()
			configValue = configValue.Elem()
		}

		switch {
		case configValue.Type() == durationType:
			configValue.SetInt(int64(c.Duration(name)))
		case kind == reflect.Bool:
			configValue.SetBool(c.Bool(name))
		case kind == reflect.String:
			configValue.SetString(c.String(name))
		case kind == reflect.Int, kind == reflect.Int32, kind == reflect.Int64:
			configValue.SetInt(c.Int64(name))
		case kind == reflect.Uint8, kind == reflect.Uint16, kind == reflect.Uint32, kind == reflect.Uint64:
			configValue.SetUint(c.Uint64(name))
		case kind == reflect.Float32, kind == reflect.Float64:
			configValue.SetFloat(c.Float64(name))
		case kind == reflect.Slice, kind == reflect.Map:
			continue
		default:
			return fmt.Errorf("unsupported generated cli flag type for config: %s is a %s", name, kind.String())
		}
	}

	if c.IsSet("dev") {
		conf.Development = c.Bool("dev")
	}
	if c.IsSet("url") {
		conf.URL = c.String("url")
	}
	if c.IsSet("api-key") {
		conf.APIKey = c.String("api-key")
	}
	if c.IsSet("api-secret") {
		conf.APISecret = c.String("api-secret")
	}
	if c.IsSet("audience") {
		conf.Audience = c.String("audience")
	}
	if c.IsSet("timeout") {
		conf.RPCTimeout = c.Duration("timeout")
	}
	if c.IsSet("keys") {
		if err := conf.unmarshalKeys(c.String("keys")); err != nil {
			return errors.New("Could not parse keys, it needs to be exactly, \"key: secret\", including the space")
		}
	}
	return nil
}

func (conf *Config) unmarshalKeys(keys string) error {
	temp := make(map[string]interface{})
	if err := yaml.Unmarshal([]byte(keys), temp); err != nil {
		return err
	}

	conf.DevServer.Keys = make(map[string]string, len(temp))

	for key, val := range temp {
		if secret, ok := val.(string); ok {
			conf.DevServer.Keys[key] = secret
		}
	}
	return nil
}

// GetConfigString returns the inline body when given, otherwise the file.
func GetConfigString(configFile string, inConfigBody string) (string, error) {
	if inConfigBody != "" || configFile == "" {
		return inConfigBody, nil
	}

	path, err := homedir.Expand(configFile)
	if err != nil {
		return "", err
	}
	outConfigBody, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return string(outConfigBody), nil
}

func SetLogger(l logger.Logger) {
	logger.SetLogger(l, "substream")
}

func InitLoggerFromConfig(config *LoggingConfig) {
	logger.InitFromConfig(&config.Config, "substream")
}
