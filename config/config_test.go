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

package config

import (
	"os"
	"testing"

	"github.com/arduino/go-paths-helper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(paths.New(t.TempDir()))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Profile)
	require.Equal(t, "make", cfg.BuildSystem)
	require.False(t, cfg.AutoFlash)
	require.Empty(t, cfg.Programmer)
}

func TestLoadFromYaml(t *testing.T) {
	root := paths.New(t.TempDir())
	content := `profile: release
build_system: cmake
auto_flash: true
programmer: j-link
tool_paths:
  arm-none-eabi-gcc: /opt/gcc-arm/bin/arm-none-eabi-gcc
`
	require.NoError(t, root.Join(FileName).WriteFile([]byte(content)))

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "release", cfg.Profile)
	require.Equal(t, "cmake", cfg.BuildSystem)
	require.True(t, cfg.AutoFlash)
	require.Equal(t, "j-link", cfg.Programmer)
	require.Equal(t, "/opt/gcc-arm/bin/arm-none-eabi-gcc", cfg.ToolPaths["arm-none-eabi-gcc"])
}

func TestLoadPartialYamlKeepsDefaults(t *testing.T) {
	root := paths.New(t.TempDir())
	require.NoError(t, root.Join(FileName).WriteFile([]byte("auto_flash: true\n")))

	cfg, err := Load(root)
	require.NoError(t, err)
	require.True(t, cfg.AutoFlash)
	require.Equal(t, "debug", cfg.Profile)
	require.Equal(t, "make", cfg.BuildSystem)
}

func TestLoadMalformedYaml(t *testing.T) {
	root := paths.New(t.TempDir())
	require.NoError(t, root.Join(FileName).WriteFile([]byte("profile: [unclosed\n")))

	_, err := Load(root)
	require.Error(t, err)
	require.Contains(t, err.Error(), FileName)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	root := paths.New(t.TempDir())
	require.NoError(t, root.Join(FileName).WriteFile([]byte("profile: release\n")))
	t.Setenv("STM32_DEVKIT_PROFILE", "size")
	t.Setenv("STM32_DEVKIT_PROGRAMMER", "cmsis-dap")

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "size", cfg.Profile)
	require.Equal(t, "cmsis-dap", cfg.Programmer)
	require.Equal(t, "make", cfg.BuildSystem)
}

func TestDotenvOverrides(t *testing.T) {
	root := paths.New(t.TempDir())
	// register the cleanup, then unset so the .env value is picked up
	t.Setenv("STM32_DEVKIT_BUILD_SYSTEM", "")
	os.Unsetenv("STM32_DEVKIT_BUILD_SYSTEM")
	require.NoError(t, root.Join(".env").WriteFile([]byte("STM32_DEVKIT_BUILD_SYSTEM=cmake\n")))

	cfg, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, "cmake", cfg.BuildSystem)
}
