package booking

type loginForm struct {
	Document  string `validate:"required"`
	BirthDate string `validate:"required,birthdate"`
}

type bookingForm struct {
	Document string `validate:"required"`
	DoctorID string `validate:"required"`
	Date     string `validate:"required,datetime=2006-01-02"`
	Hour     string `validate:"required"`
}

type dateForm struct {
	Date string `validate:"required,datetime=2006-01-02"`
}

var (
	loginLabels   = map[string]string{"Document": "document", "BirthDate": "birth date"}
	bookingLabels = map[string]string{"DoctorID": "doctor", "Date": "date", "Hour": "hour"}
	dateLabels    = map[string]string{"Date": "date"}
)
