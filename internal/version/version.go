// Package version хранит сведения о сборке; значения задаются через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/marketplace/internal/version.version=v1.2.0"
package version

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Service — имя сервиса в логах, health-ответах и client id Kafka.
const Service = "marketplace"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает коммит сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("service=%s version=%s commit=%s date=%s", Service, version, commit, date)
}

// LogFields возвращает поля сборки для стартовой записи в лог.
func LogFields() log.Fields {
	return log.Fields{
		"service": Service,
		"version": version,
		"commit":  commit,
		"built":   date,
	}
}

// ClientID собирает "marketplace-<component>-<version>" для client.id Kafka.
// Брокер принимает только [A-Za-z0-9._-], остальное заменяется на '_'.
func ClientID(component string) string {
	id := Service
	if component != "" {
		id += "-" + component
	}
	id += "-" + version
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id)
}
