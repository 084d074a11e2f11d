package database

import (
	"testing"

	"medease-realtime/common/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurePool(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	configurePool(db, &config.DatabaseConfig{MaxConns: 20})

	assert.Equal(t, 20, db.Stats().MaxOpenConnections)
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
