// Package config loads service configuration from the environment, with
// optional .env file support for local development.
package config
