// Package config loads typed configuration from environment variables and
// optional dotenv files.
//
// Parsing is done by github.com/caarlos0/env using struct tags; dotenv files
// are read with github.com/joho/godotenv. Structs implementing Validator are
// checked after parsing.
package config
