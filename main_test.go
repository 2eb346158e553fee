package main

import (
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestConfigureLoggingDebugEnv(t *testing.T) {
	t.Setenv("DEBUG", "true")
	logger := configureLogging()
	if logger.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level on the request logger, got %v", logger.GetLevel())
	}
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level on the package logger, got %v", log.GetLevel())
	}
}

func TestConfigureLoggingDefaultsToInfo(t *testing.T) {
	t.Setenv("DEBUG", "")
	logger := configureLogging()
	if logger.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level by default, got %v", logger.GetLevel())
	}
}
