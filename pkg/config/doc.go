// Package config loads typed configuration structs from environment
// variables using github.com/caarlos0/env field tags, with optional .env
// file support for local development via github.com/joho/godotenv.
//
// Every package that needs configuration declares its own Config struct and
// the composition root loads them at startup:
//
//	var pgCfg pg.Config
//	config.MustLoad(&pgCfg)
package config
