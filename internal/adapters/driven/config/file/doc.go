// Package file loads configuration from the local filesystem.
//
// Values are layered in increasing precedence: built-in defaults, the TOML
// file ($XDG_CONFIG_HOME/etasync/config.toml unless overridden), a .env file
// in the working directory, and the process environment.
package file
