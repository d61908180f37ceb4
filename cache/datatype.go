package cache

// DataType tags an entry for bulk invalidation. It is never used to address
// an entry.
type DataType string

const (
	DataTypeDoctorsList        DataType = "doctors-list"
	DataTypeDoctorAvailability DataType = "doctor-availability"
	DataTypeAppointmentsList   DataType = "appointments-list"
	DataTypePatientEHR         DataType = "patient-ehr"
	DataTypeMedicalHistory     DataType = "medical-history"
	DataTypePrescriptions      DataType = "prescriptions"
	DataTypeUserSettings       DataType = "user-settings"
	DataTypeGeneral            DataType = "general"
)

// DataTypes is the fixed vocabulary.
var DataTypes = []DataType{
	DataTypeDoctorsList,
	DataTypeDoctorAvailability,
	DataTypeAppointmentsList,
	DataTypePatientEHR,
	DataTypeMedicalHistory,
	DataTypePrescriptions,
	DataTypeUserSettings,
	DataTypeGeneral,
}

func (d DataType) Valid() bool {
	for _, known := range DataTypes {
		if d == known {
			return true
		}
	}
	return false
}
