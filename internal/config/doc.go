// Package config defines the application's configuration structure and
// provides functionality for loading configuration from environment
// variables and config files using viper, validated with
// go-playground/validator.
package config
