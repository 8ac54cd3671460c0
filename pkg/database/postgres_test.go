package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/lab-reservation-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "lab", Password: "pw", Name: "lab_reservations", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=lab password=pw dbname=lab_reservations sslmode=disable", dsn)
}
