package repository

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDeviceDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *DeviceRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewDeviceRepository(db, logger)

	return db, mock, repo
}

func TestGetDeviceBySerial_Success(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	deviceID := uuid.New().String()
	tenantID := uuid.New().String()

	rows := sqlmock.NewRows([]string{
		"device_id", "tenant_id", "serial_number", "device_name",
		"speaker_serial", "monitoring_enabled",
	}).AddRow(
		deviceID, tenantID, "WB-001", "Wearable-WB-001",
		"SPK-001", true,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("WB-001").
		WillReturnRows(rows)

	device, err := repo.GetDeviceBySerial("WB-001")

	require.NoError(t, err)
	assert.Equal(t, deviceID, device.DeviceID)
	assert.Equal(t, tenantID, device.TenantID)
	assert.Equal(t, "WB-001", device.SerialNumber)
	assert.Equal(t, "SPK-001", device.SpeakerSerial)
	assert.True(t, device.MonitoringEnabled)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDeviceBySerial_NotFound(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("WB-404").
		WillReturnError(sql.ErrNoRows)

	device, err := repo.GetDeviceBySerial("WB-404")

	assert.Error(t, err)
	assert.Nil(t, device)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDeviceBySerial_QueryError(t *testing.T) {
	db, mock, repo := setupMockDeviceDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("WB-001").
		WillReturnError(sql.ErrConnDone)

	device, err := repo.GetDeviceBySerial("WB-001")

	assert.Error(t, err)
	assert.Nil(t, device)
	assert.Contains(t, err.Error(), "failed to query device")

	require.NoError(t, mock.ExpectationsWereMet())
}
