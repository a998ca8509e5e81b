package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

// 检查设备注册表：列出启用夜惊监测的穿戴设备及其音箱配对情况，
// 并标出启用了监测但没有配对音箱的设备（安抚指令无下发目标）
func main() {
	// 从环境变量获取数据库连接信息，如果没有则使用默认值
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		parseInt(getEnv("DB_PORT", "5432"), 5432),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "nightwatch"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	query := `
		SELECT
			d.device_id,
			d.tenant_id,
			d.serial_number,
			d.device_name,
			d.speaker_serial,
			d.monitoring_enabled
		FROM devices d
		ORDER BY d.tenant_id, d.serial_number;
	`

	rows, err := db.Query(query)
	if err != nil {
		log.Fatalf("Failed to query devices: %v", err)
	}
	defer rows.Close()

	total := 0
	enabled := 0
	unpaired := 0

	fmt.Println("=== Device registry ===")
	for rows.Next() {
		var deviceID, tenantID, serial, name, speakerSerial string
		var monitoringEnabled bool

		if err := rows.Scan(&deviceID, &tenantID, &serial, &name, &speakerSerial, &monitoringEnabled); err != nil {
			log.Fatalf("Failed to scan row: %v", err)
		}

		total++
		marker := " "
		if monitoringEnabled {
			enabled++
			if speakerSerial == "" {
				// 启用了监测但没有安抚指令的下发目标
				unpaired++
				marker = "!"
			}
		}

		fmt.Printf("%s device=%s tenant=%s serial=%s speaker=%q monitoring=%v\n",
			marker, deviceID, tenantID, serial, speakerSerial, monitoringEnabled)
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Row iteration error: %v", err)
	}

	fmt.Printf("\nTotal: %d devices, %d monitoring enabled, %d enabled without speaker pairing\n",
		total, enabled, unpaired)
	if unpaired > 0 {
		fmt.Println("WARNING: devices marked '!' will log cue_failed on every episode")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string, defaultValue int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return defaultValue
}
