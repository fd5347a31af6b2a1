// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for ticketbridge.
//
// Configuration is loaded from a single file specified by either the
// TICKETBRIDGE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no file search and no fallback.
//
// The file supports environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production without its own section
// logs JSON at info level.
//
// Variable expansion is performed on paths and connection URLs after
// loading: ${HOME}, ${STATE_DIR}, and ${VAR:-default} patterns are
// expanded. Platform tokens are never stored in the file; the file
// names the environment variables that hold them.
//
// Key exports:
//
//   - [Config] -- master struct, one field per component
//   - [Default] -- returns a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other ticketbridge packages.
package config
