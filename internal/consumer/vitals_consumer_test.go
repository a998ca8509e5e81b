package consumer

import (
	"database/sql"
	"os"
	"sync"
	"testing"

	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/config"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/metrics"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/models"
	"github.com/DigitalWolfInc/mindtrainer-sub002/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDispatcher struct {
	mu      sync.Mutex
	devices []*repository.Device
	samples []models.BioSample
}

func (d *recordingDispatcher) Dispatch(device *repository.Device, sample models.BioSample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices = append(d.devices, device)
	d.samples = append(d.samples, sample)
}

func setupTestConsumer(t *testing.T) (sqlmock.Sqlmock, *recordingDispatcher, *VitalsConsumer, *sql.DB) {
	os.Clearenv()
	cfg, err := config.Load()
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	deviceRepo := repository.NewDeviceRepository(db, logger)
	dispatcher := &recordingDispatcher{}
	m := metrics.New(prometheus.NewRegistry())

	c := NewVitalsConsumer(cfg, nil, deviceRepo, dispatcher, m, logger)
	return mock, dispatcher, c, db
}

func deviceRows(monitoringEnabled bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"device_id", "tenant_id", "serial_number", "device_name",
		"speaker_serial", "monitoring_enabled",
	}).AddRow(
		"device-1", "tenant-1", "WB-001", "Wearable-WB-001",
		"SPK-001", monitoringEnabled,
	)
}

func TestHandleMessage_DispatchesSample(t *testing.T) {
	mock, dispatcher, c, db := setupTestConsumer(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("WB-001").WillReturnRows(deviceRows(true))

	payload := []byte(`{"heartRate": 72, "hrv": 48.5, "motion": 0.02, "sleepStage": "nrem", "timestamp": 1724198400}`)
	err := c.handleMessage("wearable/WB-001/vitals", payload)

	require.NoError(t, err)
	require.Len(t, dispatcher.samples, 1)
	assert.Equal(t, "device-1", dispatcher.devices[0].DeviceID)
	assert.Equal(t, 72, dispatcher.samples[0].HeartRate)
	assert.Equal(t, models.StageNREM, dispatcher.samples[0].Stage)
	assert.Equal(t, int64(1724198400), dispatcher.samples[0].At.Unix())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessage_VendorStageAliasMapsToNREM(t *testing.T) {
	mock, dispatcher, c, db := setupTestConsumer(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("WB-001").WillReturnRows(deviceRows(true))

	payload := []byte(`{"heartRate": 68, "hrv": 52, "motion": 0.01, "sleepStage": "deep"}`)
	err := c.handleMessage("wearable/WB-001/vitals", payload)

	require.NoError(t, err)
	require.Len(t, dispatcher.samples, 1)
	assert.Equal(t, models.StageNREM, dispatcher.samples[0].Stage)
}

func TestHandleMessage_MalformedPayloadDropped(t *testing.T) {
	_, dispatcher, c, db := setupTestConsumer(t)
	defer db.Close()

	// 格式错误的消息丢弃，不中断后续消息处理
	err := c.handleMessage("wearable/WB-001/vitals", []byte(`{not json`))

	assert.NoError(t, err)
	assert.Empty(t, dispatcher.samples)
}

func TestHandleMessage_InvalidTopic(t *testing.T) {
	_, dispatcher, c, db := setupTestConsumer(t)
	defer db.Close()

	err := c.handleMessage("wearable", []byte(`{}`))

	assert.Error(t, err)
	assert.Empty(t, dispatcher.samples)
}

func TestHandleMessage_UnknownDevice(t *testing.T) {
	mock, dispatcher, c, db := setupTestConsumer(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("WB-404").WillReturnError(sql.ErrNoRows)

	payload := []byte(`{"heartRate": 72, "sleepStage": "nrem"}`)
	err := c.handleMessage("wearable/WB-404/vitals", payload)

	assert.Error(t, err)
	assert.Empty(t, dispatcher.samples)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleMessage_MonitoringDisabledSkipped(t *testing.T) {
	mock, dispatcher, c, db := setupTestConsumer(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("WB-001").WillReturnRows(deviceRows(false))

	payload := []byte(`{"heartRate": 72, "sleepStage": "nrem"}`)
	err := c.handleMessage("wearable/WB-001/vitals", payload)

	assert.NoError(t, err)
	assert.Empty(t, dispatcher.samples)

	require.NoError(t, mock.ExpectationsWereMet())
}
