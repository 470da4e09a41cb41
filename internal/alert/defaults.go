package alert

// DefaultRules 内置告警规则
func DefaultRules() []AlertRule {
	return []AlertRule{
		NewRule("cpu_high", "CPU 高负载告警", "CPU 使用率超过 80%",
			Threshold(ConditionCPUUsageAbove, 80), SeverityWarning),
		NewRule("cpu_critical", "CPU 严重告警", "CPU 使用率超过 95%",
			Threshold(ConditionCPUUsageAbove, 95), SeverityCritical),
		NewRule("memory_high", "内存高负载告警", "内存使用率超过 85%",
			Threshold(ConditionMemoryUsageAbove, 85), SeverityWarning),
		NewRule("disk_high", "磁盘高负载告警", "磁盘使用率超过 90%",
			Threshold(ConditionDiskUsageAbove, 90), SeverityWarning),
		NewRule("chipset_warning", "南桥温度警告", "南桥/PCH 温度超过 60°C，可能影响系统稳定性",
			Threshold(ConditionChipsetTemperatureAbove, 60), SeverityWarning),
		NewRule("chipset_critical", "南桥温度严重告警", "南桥/PCH 温度超过 70°C，可能导致磁盘掉线或 CMOS 错误",
			Threshold(ConditionChipsetTemperatureAbove, 70), SeverityCritical),
		NewRule("fan_stopped", "风扇停转告警", "检测到风扇停转，可能导致硬件过热和损坏",
			Flag(ConditionFanStopped), SeverityCritical),
		NewRule("fan_slow_speed", "风扇转速过低告警", "检测到风扇转速过低，请检查风扇状态",
			Flag(ConditionFanSlowSpeed), SeverityWarning),
		NewRule("nvme_temp_high", "NVMe/SSD 温度过高", "NVMe/SSD 温度超过 70°C，可能导致性能下降",
			Threshold(ConditionDiskTemperatureAbove, 70), SeverityWarning),
		NewRule("nvme_temp_critical", "NVMe/SSD 温度严重", "NVMe/SSD 温度超过 80°C，可能导致数据丢失",
			Threshold(ConditionDiskTemperatureAbove, 80), SeverityCritical),
		NewRule("disk_health_warning", "磁盘健康警告", "检测到磁盘健康状态异常，请检查 SMART 状态",
			Flag(ConditionDiskHealthWarning), SeverityError),
		NewRule("voltage_abnormal", "电压异常告警", "检测到电压偏离正常范围，可能影响系统稳定性",
			Flag(ConditionVoltageAbnormal), SeverityWarning),
		NewRule("memory_temp_high", "内存温度过高", "内存温度超过 75°C，可能影响系统稳定性",
			Threshold(ConditionMemoryTemperatureAbove, 75), SeverityWarning),
		NewRule("memory_errors_critical", "内存错误严重告警", "检测到内存不可纠正错误，系统可能不稳定",
			Flag(ConditionMemoryErrors), SeverityCritical),
	}
}
