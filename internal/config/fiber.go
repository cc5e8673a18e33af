package config

import (
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func NewFiber(logger *logrus.Logger, cfg *AppConfig) *fiber.App {
	bodyLimit := 20 * 1024 * 1024
	if cfg != nil && cfg.BodyLimit > 0 {
		bodyLimit = cfg.BodyLimit
	}

	app := fiber.New(
		fiber.Config{
			AppName:               "Vision Detection API",
			BodyLimit:             bodyLimit,
			DisableKeepalive:      false,
			StrictRouting:         true,
			CaseSensitive:         true,
			EnablePrintRoutes:     cfg != nil && cfg.Env == "development",
			DisableStartupMessage: cfg != nil && cfg.Env == "test",
			JSONEncoder:           jsoniter.Marshal,
			JSONDecoder:           jsoniter.Unmarshal,
		})

	logger.WithField("body_limit", bodyLimit).Debug("Fiber app configured")

	return app
}
