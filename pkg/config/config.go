/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

type DeviceConfig struct {
	VendorID  uint16 `yaml:"vendor_id"`
	ProductID uint16 `yaml:"product_id"`
	// ReadTimeoutMs is the timeout of a single read attempt on the transport
	ReadTimeoutMs int `yaml:"read_timeout_ms"`
	RetryCount    int `yaml:"retry_count"`
	RetryDelayMs  int `yaml:"retry_delay_ms"`
}

type APIConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	Device    *DeviceConfig `yaml:"device"`
	API       *APIConfig    `yaml:"api"`
	LogLevel  string        `yaml:"log_level"`
	CachePath string        `yaml:"cache_path"`
	filepath  string
}

type ErrConfigFileExists struct {
	Path string
}

func (e ErrConfigFileExists) Error() string {
	return fmt.Sprintf("Config file already exists: %s", e.Path)
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	return ioutil.WriteFile(c.filepath, data, 0644)
}

// Load reads the config file if it exists. A missing file is not an error,
// the defaults stay in place.
func (c *Config) Load() error {
	data, err := ioutil.ReadFile(c.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, CacheFile)
}

func NewDefaultConfig() *Config {
	return &Config{
		Device: &DeviceConfig{
			VendorID:      DefaultVendorID,
			ProductID:     DefaultProductID,
			ReadTimeoutMs: DefaultReadTimeoutMs,
			RetryCount:    DefaultRetryCount,
			RetryDelayMs:  DefaultRetryDelayMs,
		},
		API: &APIConfig{
			Host: DefaultAPIHost,
			Port: DefaultAPIPort,
		},
		LogLevel:  DefaultLogLevel,
		CachePath: DefaultCachePath(),
		filepath:  DefaultConfigPath(),
	}
}
