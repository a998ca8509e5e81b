// Package repository 提供设备注册表的只读访问
package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Device 设备模型（穿戴设备与配对的床头音箱）
type Device struct {
	DeviceID          string
	TenantID          string
	SerialNumber      string
	DeviceName        string
	SpeakerSerial     string // 配对音箱序列号（安抚音频的下发目标）
	MonitoringEnabled bool   // 是否启用夜惊监测
}

// DeviceRepository 设备仓库（本服务只读）
type DeviceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeviceRepository 创建设备仓库
func NewDeviceRepository(db *sql.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{
		db:     db,
		logger: logger,
	}
}

// GetDeviceBySerial 根据穿戴设备序列号查询设备
func (r *DeviceRepository) GetDeviceBySerial(serial string) (*Device, error) {
	query := `
		SELECT
			d.device_id,
			d.tenant_id,
			d.serial_number,
			d.device_name,
			d.speaker_serial,
			d.monitoring_enabled
		FROM devices d
		WHERE d.serial_number = $1
		LIMIT 1
	`

	device := &Device{}
	err := r.db.QueryRow(query, serial).Scan(
		&device.DeviceID,
		&device.TenantID,
		&device.SerialNumber,
		&device.DeviceName,
		&device.SpeakerSerial,
		&device.MonitoringEnabled,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("device not found: %s", serial)
		}
		return nil, fmt.Errorf("failed to query device: %w", err)
	}

	return device, nil
}
