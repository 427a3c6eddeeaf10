package model

// SensorTemplate returns the default sensor set provisioned for a device type.
func SensorTemplate(t DeviceType) []SensorDefinition {
	switch t {
	case DeviceTypeRST:
		return []SensorDefinition{
			{Field: "field1", Name: "Temperature", Unit: "°C", Min: limit(20), Max: limit(25)},
			{Field: "field2", Name: "Humidity", Unit: "%", Min: limit(30), Max: limit(45)},
		}
	case DeviceTypeDPT:
		return []SensorDefinition{
			{Field: "field1", Name: "Differential Pressure", Unit: "Pa", Min: limit(-2), Max: limit(2)},
		}
	default:
		return nil
	}
}

func limit(v float64) *float64 {
	return &v
}
