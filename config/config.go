/*
	stm32-devkit
	Copyright (c) 2024 stm32-devkit contributors.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package config loads the per-workspace settings the CLI feeds into the
// engine: selected profile and build system, auto-flash, programmer
// override and explicit tool paths.
package config

import (
	"fmt"
	"os"

	"github.com/arduino/go-paths-helper"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// FileName is the workspace configuration file, looked up at the project
// root.
const FileName = "stm32-devkit.yaml"

// Config is the workspace configuration. Zero values fall back to the
// documented defaults.
type Config struct {
	Profile     string            `yaml:"profile"`
	BuildSystem string            `yaml:"build_system"`
	AutoFlash   bool              `yaml:"auto_flash"`
	Programmer  string            `yaml:"programmer"`
	ToolPaths   map[string]string `yaml:"tool_paths"`
}

// Default returns the configuration used when the workspace has no file.
func Default() *Config {
	return &Config{
		Profile:     "debug",
		BuildSystem: "make",
	}
}

// Load reads the workspace configuration: stm32-devkit.yaml merged with
// STM32_DEVKIT_* environment overrides, including those from a .env file at
// the project root. A missing config file yields the defaults; a malformed
// one is an error.
func Load(root *paths.Path) (*Config, error) {
	cfg := Default()

	file := root.Join(FileName)
	if file.Exist() {
		data, err := file.ReadFile()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", file, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", file, err)
		}
	}

	dotenv := root.Join(".env")
	if dotenv.Exist() {
		if err := godotenv.Load(dotenv.String()); err != nil {
			logrus.WithError(err).Warnf("ignoring unreadable %s", dotenv)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("STM32_DEVKIT_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv("STM32_DEVKIT_BUILD_SYSTEM"); v != "" {
		cfg.BuildSystem = v
	}
	if v := os.Getenv("STM32_DEVKIT_PROGRAMMER"); v != "" {
		cfg.Programmer = v
	}
}
